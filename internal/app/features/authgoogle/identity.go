// internal/app/features/authgoogle/identity.go
package authgoogle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	userstore "github.com/dalemusser/learnhub/internal/app/store/users"
	"github.com/dalemusser/learnhub/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var errNoAccount = errors.New("no matching google account")

// googleIdentity is the subset of the userinfo response used for matching.
type googleIdentity struct {
	Subject  string `json:"id"`
	Email    string `json:"email"`
	Verified bool   `json:"verified_email"`
	Name     string `json:"name"`
}

func (h *Handler) identity(ctx context.Context, tok *oauth2.Token) (googleIdentity, error) {
	var id googleIdentity

	resp, err := h.config().Client(ctx, tok).Get(h.UserInfoURL)
	if err != nil {
		return id, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return id, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return id, fmt.Errorf("userinfo decode: %w", err)
	}
	if id.Subject == "" {
		return id, errors.New("userinfo has no subject")
	}
	return id, nil
}

// match finds the account for a Google identity. A linked subject id wins.
// Otherwise a verified email must belong to a google-method account, which
// is then linked to the subject.
func (h *Handler) match(ctx context.Context, id googleIdentity) (models.User, error) {
	u, err := h.Users.GetByAuthReturnID(ctx, models.AuthMethodGoogle, id.Subject)
	if err == nil || !errors.Is(err, userstore.ErrNotFound) {
		return u, err
	}

	if !id.Verified || id.Email == "" {
		return models.User{}, errNoAccount
	}
	u, err = h.Users.GetByEmail(ctx, id.Email)
	switch {
	case errors.Is(err, userstore.ErrNotFound):
		return models.User{}, errNoAccount
	case err != nil:
		return models.User{}, err
	case u.AuthMethod != models.AuthMethodGoogle:
		return models.User{}, errNoAccount
	}

	if u.AuthReturnID == "" {
		if err := h.Users.SetAuthReturnID(ctx, u.ID, id.Subject); err != nil {
			h.Log.Warn("linking google subject failed", zap.String("user_id", u.ID.Hex()), zap.Error(err))
		}
	}
	return u, nil
}
