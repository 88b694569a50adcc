package alert

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"sokol-alert/config"
	"sokol-alert/core/rbac"
	"sokol-alert/core/store"
	"sokol-alert/core/telegram"
	"sokol-alert/core/utils"
)

// Service is the operator-facing surface of the engine. The dispatch
// loop and the ops API both sit on top of it.
type Service struct {
	cfg         *config.AppConfig
	subscribers store.SubscribersStore
	incidents   store.IncidentsStore
	responses   store.ResponsesStore
	deliveries  store.DeliveriesStore
	enforcer    *rbac.Enforcer
	tracker     *Tracker
	broadcaster *Broadcaster
	ledger      *Ledger
	compiler    *Compiler
	publisher   *Publisher
	logger      *utils.Logger
}

type ServiceDeps struct {
	Subscribers store.SubscribersStore
	Incidents   store.IncidentsStore
	Responses   store.ResponsesStore
	Deliveries  store.DeliveriesStore
	Enforcer    *rbac.Enforcer
	Telegram    telegram.Client
	Logger      *utils.Logger
}

func NewService(cfg *config.AppConfig, deps ServiceDeps) *Service {
	compiler := NewCompiler(deps.Subscribers, deps.Incidents, deps.Responses)
	publisher := NewPublisher(deps.Incidents, compiler, deps.Telegram, cfg.ReportChatID, deps.Logger)
	return &Service{
		cfg:         cfg,
		subscribers: deps.Subscribers,
		incidents:   deps.Incidents,
		responses:   deps.Responses,
		deliveries:  deps.Deliveries,
		enforcer:    deps.Enforcer,
		tracker:     NewTracker(cfg.EffectiveIdleTTL(), deps.Logger),
		broadcaster: NewBroadcaster(deps.Telegram, deps.Deliveries, cfg.EffectiveConcurrency(), deps.Logger),
		ledger:      NewLedger(deps.Incidents, deps.Responses, publisher, deps.Logger),
		compiler:    compiler,
		publisher:   publisher,
		logger:      deps.Logger,
	}
}

func (s *Service) Compiler() *Compiler { return s.compiler }

// Subscribe records first contact or a roster join.
func (s *Service) Subscribe(ctx context.Context, sub *store.Subscriber) error {
	return s.subscribers.Upsert(ctx, sub)
}

// Unsubscribe clears the membership flag; the row stays for reports.
func (s *Service) Unsubscribe(ctx context.Context, userID int64) error {
	err := s.subscribers.SetMembership(ctx, userID, false)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

func (s *Service) IsOperator(userID int64) bool {
	return s.enforcer.Allow(userID, rbac.ObjIncident, rbac.ActNotify)
}

// Notify is the single-shot broadcast: one text message, no authoring
// flow. Returns the created incident and the delivered count.
func (s *Service) Notify(ctx context.Context, operatorID int64, body string) (*store.Incident, int, error) {
	if !s.enforcer.Allow(operatorID, rbac.ObjIncident, rbac.ActNotify) {
		return nil, 0, ErrNotOperator
	}
	if strings.TrimSpace(body) == "" {
		return nil, 0, ErrEmptyText
	}
	return s.publishIncident(ctx, operatorID, Draft{Description: body})
}

// StartAuthoring opens the multi-step incident flow for an operator.
func (s *Service) StartAuthoring(_ context.Context, userID int64) (string, error) {
	if !s.enforcer.Allow(userID, rbac.ObjIncident, rbac.ActCreate) {
		return "", ErrNotOperator
	}
	return s.tracker.Begin(userID), nil
}

func (s *Service) AuthoringActive(userID int64) bool {
	return s.tracker.Active(userID)
}

func (s *Service) CancelAuthoring(userID int64) string {
	return s.tracker.Cancel(userID)
}

// AdvanceAuthoring feeds one input into the author's session. When the
// session completes, the draft is persisted and broadcast immediately.
func (s *Service) AdvanceAuthoring(ctx context.Context, userID int64, input SessionInput) (reply string, handled bool, err error) {
	result, ok := s.tracker.Advance(ctx, userID, input)
	if !ok {
		return "", false, nil
	}
	if !result.Completed {
		return result.Reply, true, nil
	}
	incident, delivered, err := s.publishIncident(ctx, userID, result.Draft)
	if err != nil {
		return "", true, err
	}
	return deliveredText(incident.ID, delivered), true, nil
}

func (s *Service) publishIncident(ctx context.Context, createdBy int64, draft Draft) (*store.Incident, int, error) {
	incident := &store.Incident{
		Description: draft.Description,
		Place:       draft.Place,
		PhotoFileID: draft.PhotoFileID,
		CreatedBy:   createdBy,
	}
	if _, err := s.incidents.Create(ctx, incident); err != nil {
		return nil, 0, err
	}
	roster, err := s.subscribers.ListMembers(ctx)
	if err != nil {
		return nil, 0, err
	}
	delivered := s.broadcaster.Broadcast(ctx, incident, roster)
	s.publisher.PublishInitial(ctx, incident.ID)
	return incident, delivered, nil
}

// RecordResponse is the inline-button ingestion path.
func (s *Service) RecordResponse(ctx context.Context, incidentID, userID int64, status store.ResponseStatus, lat, lon *float64) error {
	return s.ledger.RecordResponse(ctx, incidentID, userID, status, lat, lon)
}

func (s *Service) RecentIncidents(ctx context.Context, operatorID int64) ([]store.Incident, error) {
	if !s.enforcer.Allow(operatorID, rbac.ObjReport, rbac.ActRead) {
		return nil, ErrNotOperator
	}
	return s.incidents.ListRecent(ctx, s.cfg.EffectiveListLimit())
}

func (s *Service) FullReport(ctx context.Context, operatorID, incidentID int64) (*FullReport, error) {
	if !s.enforcer.Allow(operatorID, rbac.ObjReport, rbac.ActRead) {
		return nil, ErrNotOperator
	}
	return s.compiler.CompileFull(ctx, incidentID)
}

// CompileFullUnchecked serves the ops API, which authenticates with
// its own bearer token rather than an operator id.
func (s *Service) CompileFullUnchecked(ctx context.Context, incidentID int64) (*FullReport, error) {
	return s.compiler.CompileFull(ctx, incidentID)
}

func (s *Service) ListRecentUnchecked(ctx context.Context, limit int) ([]store.Incident, error) {
	if limit <= 0 {
		limit = s.cfg.EffectiveListLimit()
	}
	return s.incidents.ListRecent(ctx, limit)
}

// CompileLastUnchecked reports on the most recent incident.
func (s *Service) CompileLastUnchecked(ctx context.Context) (*FullReport, error) {
	incident, err := s.incidents.GetLast(ctx)
	if err != nil {
		return nil, err
	}
	if incident == nil {
		return nil, store.ErrNotFound
	}
	return s.compiler.CompileFull(ctx, incident.ID)
}

// ListDeliveriesUnchecked returns the broadcast audit trail for one
// incident.
func (s *Service) ListDeliveriesUnchecked(ctx context.Context, incidentID int64) ([]store.Delivery, error) {
	incident, err := s.incidents.Get(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if incident == nil {
		return nil, store.ErrNotFound
	}
	return s.deliveries.ListByIncident(ctx, incidentID)
}

// GrantOperator resolves a numeric id or @handle and grants the role.
func (s *Service) GrantOperator(ctx context.Context, actorID int64, target string) (*store.Subscriber, error) {
	if !s.enforcer.Allow(actorID, rbac.ObjOperators, rbac.ActManage) {
		return nil, ErrNotOperator
	}
	sub, err := s.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	if err := s.enforcer.Grant(ctx, sub.UserID, actorID); err != nil {
		return nil, err
	}
	return sub, nil
}

// RevokeOperator removes the role. An operator cannot revoke
// themselves.
func (s *Service) RevokeOperator(ctx context.Context, actorID int64, target string) (*store.Subscriber, error) {
	if !s.enforcer.Allow(actorID, rbac.ObjOperators, rbac.ActManage) {
		return nil, ErrNotOperator
	}
	sub, err := s.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	if sub.UserID == actorID {
		return nil, ErrSelfRevoke
	}
	if err := s.enforcer.Revoke(ctx, sub.UserID); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) ListOperators(ctx context.Context, actorID int64) ([]store.Subscriber, error) {
	if !s.enforcer.Allow(actorID, rbac.ObjOperators, rbac.ActManage) {
		return nil, ErrNotOperator
	}
	ops, err := s.operatorsOf(ctx)
	if err != nil {
		return nil, err
	}
	return ops, nil
}

func (s *Service) operatorsOf(ctx context.Context) ([]store.Subscriber, error) {
	ops, err := s.enforcer.Operators(ctx)
	if err != nil {
		return nil, err
	}
	var res []store.Subscriber
	for _, op := range ops {
		sub, err := s.subscribers.Get(ctx, op.UserID)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			sub = &store.Subscriber{UserID: op.UserID}
		}
		res = append(res, *sub)
	}
	return res, nil
}

// BootstrapOperators grants the role to every human group admin. The
// candidates come from the transport's administrator list; each is
// also registered as a subscriber so reports can name them.
func (s *Service) BootstrapOperators(ctx context.Context, admins []store.Subscriber) (int, error) {
	count := 0
	for _, admin := range admins {
		admin := admin
		if err := s.subscribers.Upsert(ctx, &admin); err != nil {
			return count, err
		}
		if err := s.enforcer.Grant(ctx, admin.UserID, admin.UserID); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Service) resolveTarget(ctx context.Context, target string) (*store.Subscriber, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, store.ErrNotFound
	}
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		sub, err := s.subscribers.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			// Unknown to the roster but a valid id; operators may be
			// granted before first contact.
			return &store.Subscriber{UserID: id}, nil
		}
		return sub, nil
	}
	sub, err := s.subscribers.FindByUsername(ctx, target)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, store.ErrNotFound
	}
	return sub, nil
}
