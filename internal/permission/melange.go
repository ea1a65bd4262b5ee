package permission

import (
	"context"
	"log/slog"
	"time"

	"github.com/pthm/melange/melange"

	"reportgen/internal/report"
	"reportgen/internal/schema"
)

const (
	// SubjectType is the melange object type of report users.
	SubjectType melange.ObjectType = "user"
	// ModelType is the melange object type of report models.
	ModelType melange.ObjectType = "report_model"
)

// Checker is the subset of *melange.Checker used here.
type Checker interface {
	Check(ctx context.Context, subject melange.SubjectLike, relation melange.RelationLike, object melange.ObjectLike) (bool, error)
}

var relations = map[report.Capability]melange.Relation{
	report.CapabilityView:   "can_view",
	report.CapabilityChange: "can_change",
}

// Melange answers capability checks with melange relationship tuples:
// user:<id> can_view|can_change report_model:<model>.
type Melange struct {
	checker Checker
	logger  *slog.Logger
}

// NewMelange wraps a checker. Check errors deny and are logged.
func NewMelange(checker Checker, logger *slog.Logger) *Melange {
	if logger == nil {
		logger = slog.Default()
	}
	return &Melange{checker: checker, logger: logger}
}

// NewMelangeChecker builds a checker over a PostgreSQL handle. A positive
// cacheTTL caches decisions in memory for that long.
func NewMelangeChecker(q melange.Querier, cacheTTL time.Duration) *melange.Checker {
	var opts []melange.Option
	if cacheTTL > 0 {
		opts = append(opts, melange.WithCache(melange.NewCache(melange.WithTTL(cacheTTL))))
	}
	return melange.NewChecker(q, opts...)
}

// HasCapability implements report.Permissions.
func (m *Melange) HasCapability(ctx context.Context, user report.User, et schema.EntityType, capability report.Capability) bool {
	relation, ok := relations[capability]
	if !ok || user.ID == "" {
		return false
	}
	subject := melange.Object{Type: SubjectType, ID: user.ID}
	object := melange.Object{Type: ModelType, ID: et.Name()}

	allowed, err := m.checker.Check(ctx, subject, relation, object)
	if err != nil {
		m.logger.Warn("permission check failed",
			slog.String("subject", subject.String()),
			slog.String("relation", relation.String()),
			slog.String("object", object.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	return allowed
}
