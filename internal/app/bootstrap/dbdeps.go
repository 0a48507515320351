// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/learnhub/internal/app/system/ratelimit"
	"github.com/dalemusser/learnhub/internal/app/system/tasks"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds the backends shared by every feature. The hooks receive it by
// value, so anything started in Startup and stopped in Shutdown is created
// in ConnectDB and carried by pointer.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	LoginLimiter *ratelimit.LoginLimiter
	Jobs         *tasks.Runner
}
