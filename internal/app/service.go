package app

import (
	"context"
	"strings"
	"time"

	"compass/api/internal/auth"
	"compass/api/internal/authpw"
	"compass/api/internal/config"
	"compass/api/internal/export"
	"compass/api/internal/rbac"
	"compass/api/internal/search"
	"compass/api/internal/session"
	"compass/api/internal/store"
	"compass/api/internal/util"
)

type Session struct {
	Token         string
	RefreshToken  string
	UserID        string
	UserName      string
	Role          string
	InstitutionID string
	JTI           string
	ExpiresAt     time.Time
}

type dataStore interface {
	EnsureMemberByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	ListInstitutions(context.Context) ([]store.Institution, error)
	GetInstitution(context.Context, string) (store.Institution, error)
	InsertInstitution(context.Context, store.Institution) error
	GetCurrentCycle(context.Context, string) (store.Cycle, error)
	GetCycle(context.Context, string) (store.Cycle, error)
	InsertCycle(context.Context, store.Cycle) error
	CloseCycle(context.Context, string) (bool, error)
	UpdateCyclePosition(context.Context, string, int, int) (bool, error)
	ListGuidelines(context.Context, string) ([]store.Guideline, error)
	GetGuideline(context.Context, string) (store.Guideline, error)
	InsertGuideline(context.Context, store.Guideline) error
	UpdateGuideline(context.Context, store.Guideline) error
	DeleteGuideline(context.Context, string) error
	ChildCount(context.Context, string) (int, error)
	UpdateGuidelinePosition(context.Context, string, string, int, int) (bool, error)
	ListInitiatives(context.Context, string) ([]store.Initiative, error)
	GetInitiative(context.Context, string) (store.Initiative, error)
	InsertInitiative(context.Context, store.Initiative) error
	UpdateInitiative(context.Context, store.Initiative) error
	UpdateInitiativePosition(context.Context, string, string, int, int) (bool, error)
	InsertComment(context.Context, store.Comment) error
	ListComments(context.Context, string, string) ([]store.Comment, error)
	ListCommentCounts(context.Context, string) ([]store.CommentCount, error)
	GetEntityContext(context.Context, string, string) (store.EntityContext, error)
	CastVote(context.Context, string, string, string, string, int, int) (store.VoteReceipt, error)
	ListVotes(context.Context, string, string) ([]store.Vote, error)
	ListVoteTotals(context.Context, string) ([]store.VoteTotal, error)
	Ping(ctx context.Context) error
}

// refreshStore holds refresh-token sessions. Backed by Redis when configured,
// otherwise by the Postgres store.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	authpw   *authpw.Service
	search   *search.Service
	export   *export.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, searchService *search.Service, exportService *export.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		authpw:   authpw.NewService(dataStore),
		search:   searchService,
		export:   exportService,
	}
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessionStore *session.RedisStore, searchService *search.Service, exportService *export.Service) *Service {
	svc := New(cfg, dataStore, searchService, exportService)
	svc.sessions = sessionStore
	return svc
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

// SMTPConfigured reports whether outbound email is set up; without it the
// auth handlers fall back to returning dev tokens in the response body.
func (s *Service) SMTPConfigured() bool {
	return s.cfg.SMTPHost != ""
}

func (s *Service) Bootstrap(ctx context.Context) error {
	institutions, err := s.store.ListInstitutions(ctx)
	if err != nil {
		return err
	}
	if len(institutions) > 0 {
		return nil
	}

	institution := store.Institution{
		ID:   util.NewID("inst"),
		Name: "Acme Institute",
		Slug: util.Slugify("Acme Institute"),
	}
	if err := s.store.InsertInstitution(ctx, institution); err != nil {
		return err
	}

	cycle := store.Cycle{
		ID:            util.NewID("cyc"),
		InstitutionID: institution.ID,
		Title:         "2026 Planning Cycle",
		State:         store.CycleOpen,
	}
	if err := s.store.InsertCycle(ctx, cycle); err != nil {
		return err
	}

	parent := store.Guideline{
		ID:           util.NewID("gdl"),
		CycleID:      cycle.ID,
		Title:        "Grow institutional reach",
		Description:  "Expand programs and partnerships beyond the current member base.",
		Status:       store.StatusActive,
		RelationType: store.RelationParent,
		LineSide:     store.SideAuto,
	}
	if err := s.store.InsertGuideline(ctx, parent); err != nil {
		return err
	}

	child := store.Guideline{
		ID:                util.NewID("gdl"),
		CycleID:           cycle.ID,
		Title:             "Launch two regional chapters",
		Description:       "Pilot chapters in underserved regions with local facilitators.",
		Status:            store.StatusActive,
		RelationType:      store.RelationChild,
		ParentGuidelineID: &parent.ID,
		LineSide:          store.SideAuto,
	}
	if err := s.store.InsertGuideline(ctx, child); err != nil {
		return err
	}

	orphan := store.Guideline{
		ID:           util.NewID("gdl"),
		CycleID:      cycle.ID,
		Title:        "Modernize the member portal",
		Description:  "Replace the legacy portal with a self-service experience.",
		Status:       store.StatusActive,
		RelationType: store.RelationOrphan,
		LineSide:     store.SideAuto,
	}
	if err := s.store.InsertGuideline(ctx, orphan); err != nil {
		return err
	}

	initiatives := []store.Initiative{
		{
			ID:           util.NewID("ini"),
			CycleID:      cycle.ID,
			Title:        "Chapter facilitator training",
			Description:  "Curriculum and onboarding for regional facilitators.",
			Status:       store.StatusActive,
			GuidelineIDs: []string{child.ID},
			LineSide:     store.SideAuto,
		},
		{
			ID:           util.NewID("ini"),
			CycleID:      cycle.ID,
			Title:        "Portal accessibility audit",
			Description:  "WCAG review of the member portal before rebuild.",
			Status:       store.StatusActive,
			GuidelineIDs: []string{orphan.ID},
			LineSide:     store.SideAuto,
		},
	}
	for _, initiative := range initiatives {
		if err := s.store.InsertInitiative(ctx, initiative); err != nil {
			return err
		}
	}

	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "Member"
	}

	user, err := s.store.EnsureMemberByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}

	return s.issueSession(ctx, user)
}

// CreateSession issues a session for an already-authenticated user, used by
// the password sign-in flow.
func (s *Service) CreateSession(ctx context.Context, user store.User) (Session, error) {
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:         user.ID,
		Name:        user.DisplayName,
		Role:        user.Role,
		Institution: user.InstitutionID,
		JTI:         jti,
		Exp:         expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:         token,
		RefreshToken:  refresh,
		UserID:        user.ID,
		UserName:      user.DisplayName,
		Role:          user.Role,
		InstitutionID: user.InstitutionID,
		JTI:           jti,
		ExpiresAt:     expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:         token,
		UserID:        user.ID,
		UserName:      user.DisplayName,
		Role:          user.Role,
		InstitutionID: user.InstitutionID,
		JTI:           claims.JTI,
		ExpiresAt:     time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
