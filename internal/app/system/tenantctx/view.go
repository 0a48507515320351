package tenantctx

import "github.com/dalemusser/learnhub/internal/domain/models"

// View is the JSON shape of a resolved context returned by the API.
type View struct {
	TenantID             string       `json:"tenant_id"`
	Slug                 string       `json:"slug"`
	Name                 string       `json:"name"`
	Theme                models.Theme `json:"theme"`
	EffectiveRole        string       `json:"effective_role"`
	MembershipRole       string       `json:"membership_role,omitempty"`
	IsOwnerImpersonating bool         `json:"is_owner_impersonating"`
	Locale               string       `json:"locale"`
}

// View renders tc for API responses.
func (tc *TenantContext) View() View {
	return View{
		TenantID:             tc.TenantID.Hex(),
		Slug:                 tc.Tenant.Slug,
		Name:                 tc.Tenant.Name,
		Theme:                tc.Tenant.Theme,
		EffectiveRole:        tc.EffectiveRole.String(),
		MembershipRole:       tc.MembershipRole.String(),
		IsOwnerImpersonating: tc.IsOwnerImpersonating,
		Locale:               tc.Locale,
	}
}
