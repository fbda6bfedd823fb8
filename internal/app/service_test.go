package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"compass/api/internal/config"
	"compass/api/internal/ledger"
	"compass/api/internal/store"
)

type fakeStore struct {
	ensureMemberByNameFn      func(context.Context, string) (store.User, error)
	getUserByIDFn             func(context.Context, string) (store.User, error)
	listInstitutionsFn        func(context.Context) ([]store.Institution, error)
	getInstitutionFn          func(context.Context, string) (store.Institution, error)
	getCurrentCycleFn         func(context.Context, string) (store.Cycle, error)
	getCycleFn                func(context.Context, string) (store.Cycle, error)
	closeCycleFn              func(context.Context, string) (bool, error)
	updateCyclePositionFn     func(context.Context, string, int, int) (bool, error)
	listGuidelinesFn          func(context.Context, string) ([]store.Guideline, error)
	getGuidelineFn            func(context.Context, string) (store.Guideline, error)
	insertGuidelineFn         func(context.Context, store.Guideline) error
	updateGuidelineFn         func(context.Context, store.Guideline) error
	deleteGuidelineFn         func(context.Context, string) error
	childCountFn              func(context.Context, string) (int, error)
	updateGuidelinePositionFn func(context.Context, string, string, int, int) (bool, error)
	listInitiativesFn         func(context.Context, string) ([]store.Initiative, error)
	getInitiativeFn           func(context.Context, string) (store.Initiative, error)
	insertInitiativeFn        func(context.Context, store.Initiative) error
	updateInitiativeFn        func(context.Context, store.Initiative) error
	updateInitiativePosFn     func(context.Context, string, string, int, int) (bool, error)
	insertCommentFn           func(context.Context, store.Comment) error
	listCommentsFn            func(context.Context, string, string) ([]store.Comment, error)
	listCommentCountsFn       func(context.Context, string) ([]store.CommentCount, error)
	getEntityContextFn        func(context.Context, string, string) (store.EntityContext, error)
	castVoteFn                func(context.Context, string, string, string, string, int, int) (store.VoteReceipt, error)
	listVotesFn               func(context.Context, string, string) ([]store.Vote, error)
	listVoteTotalsFn          func(context.Context, string) ([]store.VoteTotal, error)
	pingFn                    func(context.Context) error
}

func (f *fakeStore) EnsureMemberByName(ctx context.Context, name string) (store.User, error) {
	if f.ensureMemberByNameFn != nil {
		return f.ensureMemberByNameFn(ctx, name)
	}
	return store.User{ID: "usr_1", DisplayName: name, Role: "member", InstitutionID: "inst_1"}, nil
}
func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{ID: userID, DisplayName: "Member", Role: "member", InstitutionID: "inst_1"}, nil
}
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error  { return nil }
func (f *fakeStore) IsAccessTokenRevoked(context.Context, string) (bool, error) { return false, nil }
func (f *fakeStore) ListInstitutions(ctx context.Context) ([]store.Institution, error) {
	if f.listInstitutionsFn != nil {
		return f.listInstitutionsFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) GetInstitution(ctx context.Context, id string) (store.Institution, error) {
	if f.getInstitutionFn != nil {
		return f.getInstitutionFn(ctx, id)
	}
	return store.Institution{}, sql.ErrNoRows
}
func (f *fakeStore) InsertInstitution(context.Context, store.Institution) error { return nil }
func (f *fakeStore) GetCurrentCycle(ctx context.Context, institutionID string) (store.Cycle, error) {
	if f.getCurrentCycleFn != nil {
		return f.getCurrentCycleFn(ctx, institutionID)
	}
	return store.Cycle{}, sql.ErrNoRows
}
func (f *fakeStore) GetCycle(ctx context.Context, id string) (store.Cycle, error) {
	if f.getCycleFn != nil {
		return f.getCycleFn(ctx, id)
	}
	return store.Cycle{}, sql.ErrNoRows
}
func (f *fakeStore) InsertCycle(context.Context, store.Cycle) error { return nil }
func (f *fakeStore) CloseCycle(ctx context.Context, id string) (bool, error) {
	if f.closeCycleFn != nil {
		return f.closeCycleFn(ctx, id)
	}
	return false, nil
}
func (f *fakeStore) UpdateCyclePosition(ctx context.Context, id string, x, y int) (bool, error) {
	if f.updateCyclePositionFn != nil {
		return f.updateCyclePositionFn(ctx, id, x, y)
	}
	return true, nil
}
func (f *fakeStore) ListGuidelines(ctx context.Context, cycleID string) ([]store.Guideline, error) {
	if f.listGuidelinesFn != nil {
		return f.listGuidelinesFn(ctx, cycleID)
	}
	return nil, nil
}
func (f *fakeStore) GetGuideline(ctx context.Context, id string) (store.Guideline, error) {
	if f.getGuidelineFn != nil {
		return f.getGuidelineFn(ctx, id)
	}
	return store.Guideline{}, sql.ErrNoRows
}
func (f *fakeStore) InsertGuideline(ctx context.Context, item store.Guideline) error {
	if f.insertGuidelineFn != nil {
		return f.insertGuidelineFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) UpdateGuideline(ctx context.Context, item store.Guideline) error {
	if f.updateGuidelineFn != nil {
		return f.updateGuidelineFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) DeleteGuideline(ctx context.Context, id string) error {
	if f.deleteGuidelineFn != nil {
		return f.deleteGuidelineFn(ctx, id)
	}
	return nil
}
func (f *fakeStore) ChildCount(ctx context.Context, guidelineID string) (int, error) {
	if f.childCountFn != nil {
		return f.childCountFn(ctx, guidelineID)
	}
	return 0, nil
}
func (f *fakeStore) UpdateGuidelinePosition(ctx context.Context, id, cycleID string, x, y int) (bool, error) {
	if f.updateGuidelinePositionFn != nil {
		return f.updateGuidelinePositionFn(ctx, id, cycleID, x, y)
	}
	return true, nil
}
func (f *fakeStore) ListInitiatives(ctx context.Context, cycleID string) ([]store.Initiative, error) {
	if f.listInitiativesFn != nil {
		return f.listInitiativesFn(ctx, cycleID)
	}
	return nil, nil
}
func (f *fakeStore) GetInitiative(ctx context.Context, id string) (store.Initiative, error) {
	if f.getInitiativeFn != nil {
		return f.getInitiativeFn(ctx, id)
	}
	return store.Initiative{}, sql.ErrNoRows
}
func (f *fakeStore) InsertInitiative(ctx context.Context, item store.Initiative) error {
	if f.insertInitiativeFn != nil {
		return f.insertInitiativeFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) UpdateInitiative(ctx context.Context, item store.Initiative) error {
	if f.updateInitiativeFn != nil {
		return f.updateInitiativeFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) UpdateInitiativePosition(ctx context.Context, id, cycleID string, x, y int) (bool, error) {
	if f.updateInitiativePosFn != nil {
		return f.updateInitiativePosFn(ctx, id, cycleID, x, y)
	}
	return true, nil
}
func (f *fakeStore) InsertComment(ctx context.Context, comment store.Comment) error {
	if f.insertCommentFn != nil {
		return f.insertCommentFn(ctx, comment)
	}
	return nil
}
func (f *fakeStore) ListComments(ctx context.Context, targetKind, targetID string) ([]store.Comment, error) {
	if f.listCommentsFn != nil {
		return f.listCommentsFn(ctx, targetKind, targetID)
	}
	return nil, nil
}
func (f *fakeStore) ListCommentCounts(ctx context.Context, cycleID string) ([]store.CommentCount, error) {
	if f.listCommentCountsFn != nil {
		return f.listCommentCountsFn(ctx, cycleID)
	}
	return nil, nil
}
func (f *fakeStore) GetEntityContext(ctx context.Context, targetKind, targetID string) (store.EntityContext, error) {
	if f.getEntityContextFn != nil {
		return f.getEntityContextFn(ctx, targetKind, targetID)
	}
	return store.EntityContext{}, sql.ErrNoRows
}
func (f *fakeStore) CastVote(ctx context.Context, voterID, targetKind, targetID, cycleID string, score, budget int) (store.VoteReceipt, error) {
	if f.castVoteFn != nil {
		return f.castVoteFn(ctx, voterID, targetKind, targetID, cycleID, score, budget)
	}
	return store.VoteReceipt{Score: score, TotalUsed: score}, nil
}
func (f *fakeStore) ListVotes(ctx context.Context, voterID, cycleID string) ([]store.Vote, error) {
	if f.listVotesFn != nil {
		return f.listVotesFn(ctx, voterID, cycleID)
	}
	return nil, nil
}
func (f *fakeStore) ListVoteTotals(ctx context.Context, cycleID string) ([]store.VoteTotal, error) {
	if f.listVoteTotalsFn != nil {
		return f.listVoteTotalsFn(ctx, cycleID)
	}
	return nil, nil
}
func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) SaveRefreshSession(context.Context, string, store.User, time.Time) error {
	return nil
}
func (f *fakeStore) LookupRefreshSession(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeRefreshSession(context.Context, string) error { return nil }

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			TokenSecret: "test-secret",
			AccessTTL:   15 * time.Minute,
			RefreshTTL:  time.Hour,
			VoteBudget:  20,
		},
		store:    fs,
		sessions: fs,
	}
}

func memberSession() Session {
	return Session{UserID: "usr_1", UserName: "Member", Role: "member", InstitutionID: "inst_1"}
}

func openContext(status string) store.EntityContext {
	return store.EntityContext{
		Status:        status,
		CycleID:       "cyc_1",
		CycleState:    store.CycleOpen,
		InstitutionID: "inst_1",
	}
}

func wantDomainError(t *testing.T, err error, status int, code string) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != status || domainErr.Code != code {
		t.Fatalf("got %d %s, want %d %s", domainErr.Status, domainErr.Code, status, code)
	}
	return domainErr
}

func TestCastVoteUnknownTarget(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.CastVote(context.Background(), memberSession(), store.KindGuideline, "gdl_missing", 3)
	wantDomainError(t, err, 404, "NOT_FOUND")
}

func TestCastVoteUnknownKind(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.CastVote(context.Background(), memberSession(), "proposal", "gdl_1", 3)
	wantDomainError(t, err, 422, "VALIDATION_ERROR")
}

func TestCastVoteCrossInstitution(t *testing.T) {
	fs := &fakeStore{
		getEntityContextFn: func(context.Context, string, string) (store.EntityContext, error) {
			ec := openContext(store.StatusActive)
			ec.InstitutionID = "inst_other"
			return ec, nil
		},
	}
	svc := newTestService(fs)
	_, err := svc.CastVote(context.Background(), memberSession(), store.KindGuideline, "gdl_1", 3)
	wantDomainError(t, err, 403, "FORBIDDEN")
}

func TestCastVoteClosedCycle(t *testing.T) {
	fs := &fakeStore{
		getEntityContextFn: func(context.Context, string, string) (store.EntityContext, error) {
			ec := openContext(store.StatusActive)
			ec.CycleState = store.CycleClosed
			return ec, nil
		},
	}
	svc := newTestService(fs)
	_, err := svc.CastVote(context.Background(), memberSession(), store.KindGuideline, "gdl_1", 3)
	domainErr := wantDomainError(t, err, 409, "CONFLICT")
	if domainErr.Message != "cycle not writable" {
		t.Fatalf("message = %q", domainErr.Message)
	}
}

func TestCastVoteDisabledTarget(t *testing.T) {
	fs := &fakeStore{
		getEntityContextFn: func(context.Context, string, string) (store.EntityContext, error) {
			return openContext(store.StatusDisabled), nil
		},
	}
	svc := newTestService(fs)
	_, err := svc.CastVote(context.Background(), memberSession(), store.KindInitiative, "ini_1", 2)
	domainErr := wantDomainError(t, err, 409, "CONFLICT")
	if domainErr.Message != "voting disabled" {
		t.Fatalf("message = %q", domainErr.Message)
	}
}

func TestCastVoteMapsLedgerErrors(t *testing.T) {
	cases := []struct {
		name       string
		ledgerErr  error
		wantStatus int
		wantCode   string
	}{
		{name: "invalid score", ledgerErr: ledger.ErrInvalidScore, wantStatus: 422, wantCode: "VALIDATION_ERROR"},
		{name: "budget exceeded", ledgerErr: ledger.ErrBudgetExceeded, wantStatus: 409, wantCode: "BUDGET_EXCEEDED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := &fakeStore{
				getEntityContextFn: func(context.Context, string, string) (store.EntityContext, error) {
					return openContext(store.StatusActive), nil
				},
				castVoteFn: func(context.Context, string, string, string, string, int, int) (store.VoteReceipt, error) {
					return store.VoteReceipt{}, tc.ledgerErr
				},
			}
			svc := newTestService(fs)
			_, err := svc.CastVote(context.Background(), memberSession(), store.KindGuideline, "gdl_1", 5)
			wantDomainError(t, err, tc.wantStatus, tc.wantCode)
		})
	}
}

func TestCastVotePassesBudgetAndCycle(t *testing.T) {
	var gotCycleID string
	var gotBudget int
	fs := &fakeStore{
		getEntityContextFn: func(context.Context, string, string) (store.EntityContext, error) {
			return openContext(store.StatusActive), nil
		},
		castVoteFn: func(_ context.Context, voterID, targetKind, targetID, cycleID string, score, budget int) (store.VoteReceipt, error) {
			gotCycleID = cycleID
			gotBudget = budget
			return store.VoteReceipt{Score: score, TotalUsed: 12}, nil
		},
	}
	svc := newTestService(fs)
	payload, err := svc.CastVote(context.Background(), memberSession(), store.KindGuideline, "gdl_1", 4)
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if gotCycleID != "cyc_1" || gotBudget != 20 {
		t.Fatalf("cycle=%q budget=%d", gotCycleID, gotBudget)
	}
	if payload["score"] != 4 || payload["totalUsed"] != 12 || payload["budget"] != 20 {
		t.Fatalf("payload = %v", payload)
	}
}

func TestMyVotesAggregates(t *testing.T) {
	fs := &fakeStore{
		getCurrentCycleFn: func(context.Context, string) (store.Cycle, error) {
			return store.Cycle{ID: "cyc_1", State: store.CycleOpen}, nil
		},
		listVotesFn: func(context.Context, string, string) ([]store.Vote, error) {
			return []store.Vote{
				{TargetKind: store.KindGuideline, TargetID: "gdl_1", Score: 5},
				{TargetKind: store.KindGuideline, TargetID: "gdl_2", Score: 3},
				{TargetKind: store.KindInitiative, TargetID: "ini_1", Score: 4},
			}, nil
		},
	}
	svc := newTestService(fs)
	payload, err := svc.MyVotes(context.Background(), memberSession(), "")
	if err != nil {
		t.Fatalf("MyVotes: %v", err)
	}
	if payload["totalUsed"] != 12 || payload["remaining"] != 8 {
		t.Fatalf("payload = %v", payload)
	}
	guidelineVotes := payload["guidelineVotes"].([]map[string]any)
	if len(guidelineVotes) != 2 {
		t.Fatalf("guidelineVotes = %v", guidelineVotes)
	}
	if guidelineVotes[0]["guidelineId"] != "gdl_1" || guidelineVotes[0]["score"] != 5 {
		t.Fatalf("guidelineVotes[0] = %v", guidelineVotes[0])
	}
	if guidelineVotes[1]["guidelineId"] != "gdl_2" || guidelineVotes[1]["score"] != 3 {
		t.Fatalf("guidelineVotes[1] = %v", guidelineVotes[1])
	}
	initiativeVotes := payload["initiativeVotes"].([]map[string]any)
	if len(initiativeVotes) != 1 || initiativeVotes[0]["initiativeId"] != "ini_1" || initiativeVotes[0]["score"] != 4 {
		t.Fatalf("initiativeVotes = %v", initiativeVotes)
	}
}

func TestEntityPayloadsUseFlatCoordinates(t *testing.T) {
	x, y := 120, 80
	g := guidelineJSON(store.Guideline{
		ID: "gdl_1", CycleID: "cyc_1", Title: "Reach",
		Status: store.StatusActive, RelationType: store.RelationOrphan,
		LineSide: store.SideAuto, MapX: &x, MapY: &y,
	}, 7, 2)
	if g["totalScore"] != 7 {
		t.Fatalf("totalScore = %v", g["totalScore"])
	}
	if g["mapX"] != 120 || g["mapY"] != 80 {
		t.Fatalf("coordinates = %v/%v", g["mapX"], g["mapY"])
	}
	if _, ok := g["position"]; ok {
		t.Fatal("nested position in guideline payload")
	}

	i := initiativeJSON(store.Initiative{
		ID: "ini_1", CycleID: "cyc_1", Title: "Chapters",
		Status: store.StatusActive, GuidelineIDs: []string{"gdl_1"},
		LineSide: store.SideAuto, MapX: &x, MapY: &y,
	}, 4, 0)
	if i["totalScore"] != 4 || i["mapX"] != 120 || i["mapY"] != 80 {
		t.Fatalf("initiative payload = %v", i)
	}
}

func TestValidateGuidelineRelation(t *testing.T) {
	parentID := "gdl_parent"
	otherCycleParent := "gdl_far"
	childID := "gdl_child"
	fs := &fakeStore{
		getGuidelineFn: func(_ context.Context, id string) (store.Guideline, error) {
			switch id {
			case parentID:
				return store.Guideline{ID: parentID, CycleID: "cyc_1", RelationType: store.RelationParent}, nil
			case otherCycleParent:
				return store.Guideline{ID: otherCycleParent, CycleID: "cyc_2", RelationType: store.RelationParent}, nil
			case childID:
				return store.Guideline{ID: childID, CycleID: "cyc_1", RelationType: store.RelationChild}, nil
			default:
				return store.Guideline{}, sql.ErrNoRows
			}
		},
	}
	svc := newTestService(fs)

	missing := "gdl_missing"
	cases := []struct {
		name         string
		guidelineID  string
		relationType string
		parentID     *string
		wantMessage  string
	}{
		{name: "child without parent", relationType: store.RelationChild, wantMessage: "parent guideline required"},
		{name: "self parent", guidelineID: "gdl_me", relationType: store.RelationChild, parentID: strptr("gdl_me"), wantMessage: "child cannot be parent of itself"},
		{name: "parent missing", relationType: store.RelationChild, parentID: &missing, wantMessage: "parent guideline not found"},
		{name: "parent other cycle", relationType: store.RelationChild, parentID: &otherCycleParent, wantMessage: "parent must be in same cycle"},
		{name: "parent not parent type", relationType: store.RelationChild, parentID: &childID, wantMessage: "parent guideline must be parent"},
		{name: "orphan with parent", relationType: store.RelationOrphan, parentID: &parentID, wantMessage: "parent only allowed for child guidelines"},
		{name: "bad relation type", relationType: "sibling", wantMessage: "unknown relation type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.validateGuidelineRelation(context.Background(), tc.guidelineID, "cyc_1", tc.relationType, tc.parentID)
			domainErr := wantDomainError(t, err, 422, "VALIDATION_ERROR")
			if domainErr.Message != tc.wantMessage {
				t.Fatalf("message = %q, want %q", domainErr.Message, tc.wantMessage)
			}
		})
	}

	if err := svc.validateGuidelineRelation(context.Background(), childID, "cyc_1", store.RelationChild, &parentID); err != nil {
		t.Fatalf("valid child rejected: %v", err)
	}
	if err := svc.validateGuidelineRelation(context.Background(), "", "cyc_1", store.RelationOrphan, nil); err != nil {
		t.Fatalf("orphan rejected: %v", err)
	}
}

func TestUpdateGuidelineDemotionWithChildren(t *testing.T) {
	fs := &fakeStore{
		getEntityContextFn: func(context.Context, string, string) (store.EntityContext, error) {
			return openContext(store.StatusActive), nil
		},
		getGuidelineFn: func(_ context.Context, id string) (store.Guideline, error) {
			return store.Guideline{ID: id, CycleID: "cyc_1", Title: "Reach", RelationType: store.RelationParent, Status: store.StatusActive}, nil
		},
		childCountFn: func(context.Context, string) (int, error) { return 2, nil },
	}
	svc := newTestService(fs)
	_, err := svc.UpdateGuideline(context.Background(), memberSession(), "gdl_1", GuidelineInput{
		Title:        "Reach",
		RelationType: store.RelationOrphan,
	})
	domainErr := wantDomainError(t, err, 409, "CONFLICT")
	if domainErr.Message != "parent has children" {
		t.Fatalf("message = %q", domainErr.Message)
	}
}

func TestValidateInitiativeAssignments(t *testing.T) {
	fs := &fakeStore{
		getGuidelineFn: func(_ context.Context, id string) (store.Guideline, error) {
			switch id {
			case "gdl_1":
				return store.Guideline{ID: id, CycleID: "cyc_1", Status: store.StatusActive}, nil
			case "gdl_merged":
				return store.Guideline{ID: id, CycleID: "cyc_1", Status: store.StatusMerged}, nil
			case "gdl_hidden":
				return store.Guideline{ID: id, CycleID: "cyc_1", Status: store.StatusHidden}, nil
			case "gdl_far":
				return store.Guideline{ID: id, CycleID: "cyc_2", Status: store.StatusActive}, nil
			default:
				return store.Guideline{}, sql.ErrNoRows
			}
		},
	}
	svc := newTestService(fs)

	deduped, err := svc.validateInitiativeAssignments(context.Background(), "cyc_1", []string{"gdl_1", "gdl_1", "gdl_merged"})
	if err != nil {
		t.Fatalf("valid assignments rejected: %v", err)
	}
	if len(deduped) != 2 || deduped[0] != "gdl_1" || deduped[1] != "gdl_merged" {
		t.Fatalf("deduped = %v", deduped)
	}

	if _, err := svc.validateInitiativeAssignments(context.Background(), "cyc_1", nil); err == nil {
		t.Fatal("empty assignment accepted")
	}

	_, err = svc.validateInitiativeAssignments(context.Background(), "cyc_1", []string{"gdl_1", "gdl_far"})
	domainErr := wantDomainError(t, err, 422, "VALIDATION_ERROR")
	if domainErr.Message != "guideline not in cycle" {
		t.Fatalf("message = %q", domainErr.Message)
	}

	_, err = svc.validateInitiativeAssignments(context.Background(), "cyc_1", []string{"gdl_hidden"})
	wantDomainError(t, err, 422, "VALIDATION_ERROR")
}

func TestCreateGuidelineLineSideDefaultsToAuto(t *testing.T) {
	var stored store.Guideline
	fs := &fakeStore{
		getCurrentCycleFn: func(context.Context, string) (store.Cycle, error) {
			return store.Cycle{ID: "cyc_1", InstitutionID: "inst_1", State: store.CycleOpen}, nil
		},
		insertGuidelineFn: func(_ context.Context, item store.Guideline) error {
			stored = item
			return nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.CreateGuideline(context.Background(), memberSession(), GuidelineInput{Title: "Reach"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if stored.LineSide != store.SideAuto {
		t.Fatalf("line side = %q, want %q", stored.LineSide, store.SideAuto)
	}

	_, err := svc.CreateGuideline(context.Background(), memberSession(), GuidelineInput{Title: "Reach", LineSide: "diagonal"})
	domainErr := wantDomainError(t, err, 422, "VALIDATION_ERROR")
	if domainErr.Message != "unknown line side" {
		t.Fatalf("message = %q", domainErr.Message)
	}
}

func TestCreateInitiativeLineSideDefaultsToAuto(t *testing.T) {
	var stored store.Initiative
	fs := &fakeStore{
		getCurrentCycleFn: func(context.Context, string) (store.Cycle, error) {
			return store.Cycle{ID: "cyc_1", InstitutionID: "inst_1", State: store.CycleOpen}, nil
		},
		getGuidelineFn: func(_ context.Context, id string) (store.Guideline, error) {
			return store.Guideline{ID: id, CycleID: "cyc_1", Status: store.StatusActive}, nil
		},
		insertInitiativeFn: func(_ context.Context, item store.Initiative) error {
			stored = item
			return nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.CreateInitiative(context.Background(), memberSession(), InitiativeInput{Title: "Chapters", GuidelineIDs: []string{"gdl_1"}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if stored.LineSide != store.SideAuto {
		t.Fatalf("line side = %q, want %q", stored.LineSide, store.SideAuto)
	}

	_, err := svc.CreateInitiative(context.Background(), memberSession(), InitiativeInput{Title: "Chapters", GuidelineIDs: []string{"gdl_1"}, LineSide: "middle"})
	wantDomainError(t, err, 422, "VALIDATION_ERROR")
}

func TestUpdateMapLayoutRoundsAndRejectsForeignIDs(t *testing.T) {
	var gotX, gotY int
	fs := &fakeStore{
		getCurrentCycleFn: func(context.Context, string) (store.Cycle, error) {
			return store.Cycle{ID: "cyc_1", State: store.CycleOpen}, nil
		},
		updateGuidelinePositionFn: func(_ context.Context, id, cycleID string, x, y int) (bool, error) {
			if id == "gdl_foreign" {
				return false, nil
			}
			gotX, gotY = x, y
			return true, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.UpdateMapLayout(context.Background(), memberSession(), MapLayoutInput{
		GuidelinePositions: map[string]MapPosition{"gdl_1": {X: 110.4, Y: 89.6}},
	})
	if err != nil {
		t.Fatalf("UpdateMapLayout: %v", err)
	}
	if gotX != 110 || gotY != 90 {
		t.Fatalf("stored coords = (%d,%d)", gotX, gotY)
	}
	updated := payload["updatedGuidelines"].([]string)
	if len(updated) != 1 || updated[0] != "gdl_1" {
		t.Fatalf("updatedGuidelines = %v", updated)
	}

	_, err = svc.UpdateMapLayout(context.Background(), memberSession(), MapLayoutInput{
		GuidelinePositions: map[string]MapPosition{"gdl_foreign": {X: 1, Y: 2}},
	})
	domainErr := wantDomainError(t, err, 422, "VALIDATION_ERROR")
	if domainErr.Message != "guideline not in cycle" {
		t.Fatalf("message = %q", domainErr.Message)
	}
}

func TestUpdateMapLayoutRejectsClosedCycle(t *testing.T) {
	fs := &fakeStore{
		getCurrentCycleFn: func(context.Context, string) (store.Cycle, error) {
			return store.Cycle{ID: "cyc_1", State: store.CycleClosed}, nil
		},
	}
	svc := newTestService(fs)
	_, err := svc.UpdateMapLayout(context.Background(), memberSession(), MapLayoutInput{})
	wantDomainError(t, err, 409, "CONFLICT")
}

func TestCloseCycle(t *testing.T) {
	fs := &fakeStore{
		getCycleFn: func(_ context.Context, id string) (store.Cycle, error) {
			return store.Cycle{ID: id, InstitutionID: "inst_1", State: store.CycleOpen}, nil
		},
		closeCycleFn: func(context.Context, string) (bool, error) { return true, nil },
	}
	svc := newTestService(fs)
	payload, err := svc.CloseCycle(context.Background(), memberSession(), "cyc_1")
	if err != nil {
		t.Fatalf("CloseCycle: %v", err)
	}
	if payload["state"] != store.CycleClosed {
		t.Fatalf("payload = %v", payload)
	}
}

func TestCloseCycleAlreadyClosed(t *testing.T) {
	fs := &fakeStore{
		getCycleFn: func(_ context.Context, id string) (store.Cycle, error) {
			return store.Cycle{ID: id, InstitutionID: "inst_1", State: store.CycleClosed}, nil
		},
	}
	svc := newTestService(fs)
	_, err := svc.CloseCycle(context.Background(), memberSession(), "cyc_1")
	domainErr := wantDomainError(t, err, 409, "CONFLICT")
	if domainErr.Message != "cycle already closed" {
		t.Fatalf("message = %q", domainErr.Message)
	}
}

func TestCloseCycleForeignInstitution(t *testing.T) {
	fs := &fakeStore{
		getCycleFn: func(_ context.Context, id string) (store.Cycle, error) {
			return store.Cycle{ID: id, InstitutionID: "inst_other", State: store.CycleOpen}, nil
		},
	}
	svc := newTestService(fs)
	_, err := svc.CloseCycle(context.Background(), memberSession(), "cyc_1")
	wantDomainError(t, err, 403, "FORBIDDEN")
}

func TestCreateCommentRequiresBody(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.CreateComment(context.Background(), memberSession(), CommentInput{
		TargetKind: store.KindGuideline,
		TargetID:   "gdl_1",
		Body:       "   ",
	})
	wantDomainError(t, err, 422, "VALIDATION_ERROR")
}

func TestCreateCommentAttributesAuthor(t *testing.T) {
	var saved store.Comment
	fs := &fakeStore{
		getEntityContextFn: func(context.Context, string, string) (store.EntityContext, error) {
			return openContext(store.StatusActive), nil
		},
		insertCommentFn: func(_ context.Context, c store.Comment) error {
			saved = c
			return nil
		},
	}
	svc := newTestService(fs)
	_, err := svc.CreateComment(context.Background(), memberSession(), CommentInput{
		TargetKind: store.KindGuideline,
		TargetID:   "gdl_1",
		Body:       "Needs a measurable outcome.",
	})
	if err != nil {
		t.Fatalf("CreateComment: %v", err)
	}
	if saved.Author != "Member" || saved.Body != "Needs a measurable outcome." {
		t.Fatalf("saved = %+v", saved)
	}
}

func strptr(s string) *string { return &s }
