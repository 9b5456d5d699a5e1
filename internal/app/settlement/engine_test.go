package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lynks-network/lynks/internal/domain"
	"github.com/lynks-network/lynks/internal/infra/blobstore"
	"github.com/lynks-network/lynks/internal/infra/observability"
	"github.com/lynks-network/lynks/internal/infra/sqlite"
)

// ─── Test Harness ───────────────────────────────────────────────────────────

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(e domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count(typ domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type harness struct {
	t      *testing.T
	db     *sqlite.DB
	engine *Engine
	clock  *fakeClock
	events *recorder
	blobs  *blobstore.Store
}

func testPolicy() domain.Policy {
	p := domain.DefaultPolicy()
	p.SignupGrant = 100
	p.Location = time.UTC
	return p
}

func newHarness(t *testing.T, policy domain.Policy) *harness {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	blobs := blobstore.New(t.TempDir(), policy.MaxProofBytes)
	if err := blobs.Init(); err != nil {
		t.Fatalf("Init() error: %v", err)
	}

	h := &harness{
		t:      t,
		db:     db,
		clock:  &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		events: &recorder{},
		blobs:  blobs,
	}
	h.engine = New(db, policy,
		WithClock(h.clock.Now),
		WithNotifier(h.events),
		WithBlobStore(blobs),
		WithShuffle(func(int, func(i, j int)) {}),
	)
	return h
}

func (h *harness) register(id string, role domain.Role) domain.ActorContext {
	h.t.Helper()
	if _, err := h.engine.RegisterActor(context.Background(), id, role, id); err != nil {
		h.t.Fatalf("RegisterActor(%s) error: %v", id, err)
	}
	return domain.ActorContext{ID: id, Role: role}
}

func (h *harness) balance(account string) int64 {
	h.t.Helper()
	bal, err := h.db.AccountBalance(context.Background(), account)
	if err != nil {
		h.t.Fatalf("AccountBalance(%s) error: %v", account, err)
	}
	return bal
}

func (h *harness) post(owner domain.ActorContext) domain.Post {
	h.t.Helper()
	p, err := h.engine.CreatePost(context.Background(), owner, PostRequest{URL: "https://example.com/" + owner.ID})
	if err != nil {
		h.t.Fatalf("CreatePost() error: %v", err)
	}
	return p
}

func (h *harness) submit(submitter domain.ActorContext, postID string) domain.Submission {
	h.t.Helper()
	ctx := context.Background()
	ref, err := h.engine.UploadProof(ctx, submitter, []byte("screenshot of "+submitter.ID))
	if err != nil {
		h.t.Fatalf("UploadProof() error: %v", err)
	}
	sub, err := h.engine.Submit(ctx, submitter, postID, ref)
	if err != nil {
		h.t.Fatalf("Submit() error: %v", err)
	}
	return sub
}

func (h *harness) status(id string) domain.Submission {
	h.t.Helper()
	sub, err := h.db.GetSubmission(context.Background(), id)
	if err != nil {
		h.t.Fatalf("GetSubmission() error: %v", err)
	}
	return sub
}

func (h *harness) assertConserved() {
	h.t.Helper()
	total, err := h.db.TotalBalance(context.Background())
	if err != nil {
		h.t.Fatalf("TotalBalance() error: %v", err)
	}
	if total != 0 {
		h.t.Errorf("sum of balances = %d, want 0", total)
	}
}

// ─── Registration & Handles ─────────────────────────────────────────────────

func TestRegisterActor_Grant(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()

	a, err := h.engine.RegisterActor(ctx, "alice", domain.RoleStandard, "@alice")
	if err != nil {
		t.Fatalf("RegisterActor() error: %v", err)
	}
	if a.Balance != 100 || a.Handle != "alice" {
		t.Errorf("actor = %+v, want balance 100 handle alice", a)
	}
	if got := h.balance(domain.TreasuryAccount); got != -100 {
		t.Errorf("treasury = %d, want -100", got)
	}
	h.assertConserved()

	if _, err := h.engine.RegisterActor(ctx, "alice", domain.RoleStandard, ""); !errors.Is(err, domain.ErrActorExists) {
		t.Errorf("second register error = %v, want ErrActorExists", err)
	}
	if _, err := h.engine.RegisterActor(ctx, "bob", domain.RoleStandard, "alice"); !errors.Is(err, domain.ErrHandleTaken) {
		t.Errorf("taken handle error = %v, want ErrHandleTaken", err)
	}
	if _, err := h.engine.RegisterActor(ctx, "carol", domain.Role("ROOT"), ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("bad role error = %v, want ErrUnauthorized", err)
	}
	h.assertConserved()
}

func TestHandleGate(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	owner := h.register("owner", domain.RoleStandard)
	p := h.post(owner)

	if _, err := h.engine.RegisterActor(ctx, "anon", domain.RoleStandard, ""); err != nil {
		t.Fatalf("RegisterActor() error: %v", err)
	}
	anon := domain.ActorContext{ID: "anon", Role: domain.RoleStandard}

	if _, err := h.engine.CreatePost(ctx, anon, PostRequest{URL: "https://example.com"}); !errors.Is(err, domain.ErrHandleRequired) {
		t.Errorf("CreatePost() without handle error = %v", err)
	}
	if _, err := h.engine.Submit(ctx, anon, p.ID, "ref"); !errors.Is(err, domain.ErrHandleRequired) {
		t.Errorf("Submit() without handle error = %v", err)
	}

	if _, err := h.engine.SetHandle(ctx, anon, "no"); !errors.Is(err, domain.ErrInvalidHandle) {
		t.Errorf("SetHandle(short) error = %v, want ErrInvalidHandle", err)
	}
	a, err := h.engine.SetHandle(ctx, anon, "@anon_42")
	if err != nil {
		t.Fatalf("SetHandle() error: %v", err)
	}
	if a.Handle != "anon_42" {
		t.Errorf("Handle = %q, want anon_42", a.Handle)
	}
	h.submit(anon, p.ID)
}

// ─── Posting ────────────────────────────────────────────────────────────────

func TestCreatePost_ChargesFee(t *testing.T) {
	h := newHarness(t, testPolicy())
	owner := h.register("owner", domain.RoleStandard)

	p, err := h.engine.CreatePost(context.Background(), owner, PostRequest{URL: "https://example.com/x", Reward: 40, Cap: 2})
	if err != nil {
		t.Fatalf("CreatePost() error: %v", err)
	}
	if p.Reward != 5 || p.Cap != 50 || p.FeePaid != 25 {
		t.Errorf("post = %+v, want standard reward 5, cap 50, fee 25", p)
	}
	if got := h.balance("owner"); got != 75 {
		t.Errorf("owner balance = %d, want 75", got)
	}
	h.assertConserved()
}

func TestCreatePost_AdminChoosesReward(t *testing.T) {
	h := newHarness(t, testPolicy())
	admin := h.register("root", domain.RoleAdmin)

	p, err := h.engine.CreatePost(context.Background(), admin, PostRequest{URL: "https://example.com/x", Reward: 40, Cap: 2})
	if err != nil {
		t.Fatalf("CreatePost() error: %v", err)
	}
	if p.Reward != 40 || p.Cap != 2 {
		t.Errorf("post = %+v, want reward 40 cap 2", p)
	}
}

func TestCreatePost_Validation(t *testing.T) {
	h := newHarness(t, testPolicy())
	owner := h.register("owner", domain.RoleStandard)

	for _, raw := range []string{"", "example.com", "ftp://example.com", "https://"} {
		if _, err := h.engine.CreatePost(context.Background(), owner, PostRequest{URL: raw}); !errors.Is(err, domain.ErrInvalidURL) {
			t.Errorf("CreatePost(%q) error = %v, want ErrInvalidURL", raw, err)
		}
	}
}

func TestCreatePost_InsufficientFunds(t *testing.T) {
	policy := testPolicy()
	policy.SignupGrant = 10
	h := newHarness(t, policy)
	owner := h.register("owner", domain.RoleStandard)
	other := h.register("other", domain.RoleStandard)

	_, err := h.engine.CreatePost(context.Background(), owner, PostRequest{URL: "https://example.com"})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("CreatePost() error = %v, want ErrInsufficientFunds", err)
	}
	if got := h.balance("owner"); got != 10 {
		t.Errorf("owner balance = %d, want 10", got)
	}
	feed, err := h.engine.Feed(context.Background(), other, 0, 20)
	if err != nil {
		t.Fatalf("Feed() error: %v", err)
	}
	if len(feed) != 0 {
		t.Errorf("feed has %d posts, want 0", len(feed))
	}
	h.assertConserved()
}

func TestCreatePost_DailyCap(t *testing.T) {
	policy := testPolicy()
	policy.SignupGrant = 1000
	h := newHarness(t, policy)
	ctx := context.Background()
	owner := h.register("owner", domain.RoleStandard)
	admin := h.register("root", domain.RoleAdmin)

	var first domain.Post
	for i := 0; i < 5; i++ {
		p := h.post(owner)
		if i == 0 {
			first = p
		}
	}
	if _, err := h.engine.CreatePost(ctx, owner, PostRequest{URL: "https://example.com/6"}); !errors.Is(err, domain.ErrDailyLimitExceeded) {
		t.Fatalf("6th post error = %v, want ErrDailyLimitExceeded", err)
	}

	// Deleted posts keep counting.
	if _, err := h.engine.DeletePost(ctx, owner, first.ID); err != nil {
		t.Fatalf("DeletePost() error: %v", err)
	}
	if _, err := h.engine.CreatePost(ctx, owner, PostRequest{URL: "https://example.com/6"}); !errors.Is(err, domain.ErrDailyLimitExceeded) {
		t.Errorf("post after delete error = %v, want ErrDailyLimitExceeded", err)
	}

	for i := 0; i < 6; i++ {
		h.post(admin)
	}

	h.clock.Advance(15 * time.Hour) // next UTC day
	if _, err := h.engine.CreatePost(ctx, owner, PostRequest{URL: "https://example.com/7"}); err != nil {
		t.Errorf("post on next day error: %v", err)
	}
	h.assertConserved()
}

// ─── Submitting ─────────────────────────────────────────────────────────────

func TestSubmit_Rules(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	owner := h.register("owner", domain.RoleStandard)
	bob := h.register("bob", domain.RoleStandard)
	p := h.post(owner)

	if _, err := h.engine.Submit(ctx, owner, p.ID, "ref"); !errors.Is(err, domain.ErrSelfSubmission) {
		t.Errorf("self submit error = %v, want ErrSelfSubmission", err)
	}
	if _, err := h.engine.Submit(ctx, bob, "missing", "ref"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing post error = %v, want ErrNotFound", err)
	}
	if _, err := h.engine.Submit(ctx, bob, p.ID, " "); !errors.Is(err, domain.ErrProofMissing) {
		t.Errorf("empty proof error = %v, want ErrProofMissing", err)
	}

	sub := h.submit(bob, p.ID)
	if sub.Status != domain.StatusPending {
		t.Errorf("Status = %s, want PENDING", sub.Status)
	}
	if h.events.count(domain.EventSubmissionCreated) != 1 {
		t.Error("owner was not notified of the submission")
	}

	// A second proof is refused whatever the first one's status.
	if _, err := h.engine.Review(ctx, owner, sub.ID, domain.DecisionReject, "blurry"); err != nil {
		t.Fatalf("Review() error: %v", err)
	}
	if _, err := h.engine.Submit(ctx, bob, p.ID, "ref2"); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Errorf("duplicate error = %v, want ErrDuplicateSubmission", err)
	}
}

func TestSubmit_Capacity(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	admin := h.register("root", domain.RoleAdmin)
	p, err := h.engine.CreatePost(ctx, admin, PostRequest{URL: "https://example.com", Cap: 2})
	if err != nil {
		t.Fatalf("CreatePost() error: %v", err)
	}

	a := h.register("alice", domain.RoleStandard)
	b := h.register("bob", domain.RoleStandard)
	c := h.register("carol", domain.RoleStandard)

	first := h.submit(a, p.ID)
	h.submit(b, p.ID)
	// Rejected submissions still occupy a slot.
	if _, err := h.engine.Review(ctx, admin, first.ID, domain.DecisionReject, "no"); err != nil {
		t.Fatalf("Review() error: %v", err)
	}
	if _, err := h.engine.Submit(ctx, c, p.ID, "ref"); !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Errorf("third submit error = %v, want ErrCapacityExceeded", err)
	}
}

func TestSubmit_DeletedPost(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	owner := h.register("owner", domain.RoleStandard)
	bob := h.register("bob", domain.RoleStandard)
	p := h.post(owner)
	if _, err := h.engine.DeletePost(ctx, owner, p.ID); err != nil {
		t.Fatalf("DeletePost() error: %v", err)
	}
	if _, err := h.engine.Submit(ctx, bob, p.ID, "ref"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("submit to deleted post error = %v, want ErrNotFound", err)
	}
}

func TestSubmit_ProofReference(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	alice := h.register("alice", domain.RoleStandard)
	carol := h.register("carol", domain.RoleStandard)
	dave := h.register("dave", domain.RoleStandard)
	bob := h.register("bob", domain.RoleStandard)
	pa, pc, pd := h.post(alice), h.post(carol), h.post(dave)

	if _, err := h.engine.Submit(ctx, bob, pa.ID, "never-uploaded"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown ref error = %v, want ErrNotFound", err)
	}
	carolsRef, err := h.engine.UploadProof(ctx, carol, []byte("carol's proof"))
	if err != nil {
		t.Fatalf("UploadProof() error: %v", err)
	}
	if _, err := h.engine.Submit(ctx, bob, pa.ID, carolsRef); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("someone else's ref error = %v, want ErrNotFound", err)
	}

	ref, err := h.engine.UploadProof(ctx, bob, []byte("one screenshot"))
	if err != nil {
		t.Fatalf("UploadProof() error: %v", err)
	}
	first, err := h.engine.Submit(ctx, bob, pa.ID, ref)
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if _, err := h.engine.Submit(ctx, bob, pc.ID, ref); !errors.Is(err, domain.ErrProofInUse) {
		t.Errorf("reused ref error = %v, want ErrProofInUse", err)
	}

	// Still refused once the first submission's proof has been purged.
	if _, err := h.engine.Review(ctx, alice, first.ID, domain.DecisionApprove, ""); err != nil {
		t.Fatalf("Review() error: %v", err)
	}
	if err := h.blobs.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := h.engine.Submit(ctx, bob, pc.ID, ref); !errors.Is(err, domain.ErrProofInUse) {
		t.Errorf("reused purged ref error = %v, want ErrProofInUse", err)
	}

	// An upload whose blob has gone missing is refused and stays unclaimed.
	lost, err := h.engine.UploadProof(ctx, bob, []byte("lost"))
	if err != nil {
		t.Fatalf("UploadProof() error: %v", err)
	}
	if err := h.blobs.Delete(ctx, lost); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := h.engine.Submit(ctx, bob, pd.ID, lost); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing blob error = %v, want ErrNotFound", err)
	}

	// Nothing but the approved submission is left to pay.
	h.clock.Advance(13 * time.Hour)
	res, err := h.engine.SweepDue(ctx)
	if err != nil {
		t.Fatalf("SweepDue() error: %v", err)
	}
	if res.Approved != 0 {
		t.Errorf("sweep approved %d, want 0", res.Approved)
	}
	if got := h.balance("bob"); got != 105 {
		t.Errorf("bob balance = %d, want 105", got)
	}
}

// ─── Review ─────────────────────────────────────────────────────────────────

func TestReview_ApproveScenario(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	a := h.register("a", domain.RoleStandard)
	b := h.register("b", domain.RoleStandard)

	p := h.post(a)
	if got := h.balance("a"); got != 75 {
		t.Fatalf("A balance = %d, want 75", got)
	}
	sub := h.submit(b, p.ID)

	res, err := h.engine.Review(ctx, a, sub.ID, domain.DecisionApprove, "")
	if err != nil {
		t.Fatalf("Review() error: %v", err)
	}
	if !res.Applied || res.Submission.Status != domain.StatusApproved {
		t.Fatalf("Review() = %+v, want applied APPROVED", res)
	}
	if res.Submission.DecidedBy != "a" || !res.Submission.Paid {
		t.Errorf("submission = %+v, want decided by a and paid", res.Submission)
	}
	if got := h.balance("b"); got != 105 {
		t.Errorf("B balance = %d, want 105", got)
	}
	if got := h.balance("a"); got != 75 {
		t.Errorf("A balance = %d, want 75", got)
	}

	payout, err := h.db.GetPayout(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetPayout() error: %v", err)
	}
	if payout.Amount != 5 || payout.Reason != domain.TxReward {
		t.Errorf("payout = %+v", payout)
	}
	n, err := h.db.CountPurgeJobs(ctx, domain.PurgeQueued)
	if err != nil {
		t.Fatalf("CountPurgeJobs() error: %v", err)
	}
	if n != 1 {
		t.Errorf("queued purge jobs = %d, want 1", n)
	}

	// Approving twice is a no-op.
	res, err = h.engine.Review(ctx, a, sub.ID, domain.DecisionApprove, "")
	if err != nil {
		t.Fatalf("second Review() error: %v", err)
	}
	if res.Applied {
		t.Error("second approve applied")
	}
	if got := h.balance("b"); got != 105 {
		t.Errorf("B balance after double approve = %d, want 105", got)
	}
	h.assertConserved()
}

func TestReview_Authorization(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	owner := h.register("owner", domain.RoleStandard)
	bob := h.register("bob", domain.RoleStandard)
	admin := h.register("root", domain.RoleAdmin)
	sub := h.submit(bob, h.post(owner).ID)

	for _, caller := range []domain.ActorContext{bob, admin} {
		if _, err := h.engine.Review(ctx, caller, sub.ID, domain.DecisionApprove, ""); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("Review() by %s error = %v, want ErrUnauthorized", caller.ID, err)
		}
	}
	if _, err := h.engine.Review(ctx, owner, sub.ID, domain.DecisionReject, "  "); !errors.Is(err, domain.ErrReasonRequired) {
		t.Errorf("reject without reason error = %v, want ErrReasonRequired", err)
	}
	if _, err := h.engine.Review(ctx, owner, "missing", domain.DecisionApprove, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing submission error = %v, want ErrNotFound", err)
	}
	if got := h.status(sub.ID).Status; got != domain.StatusPending {
		t.Errorf("Status = %s, want PENDING", got)
	}
}

// ─── Disputes ───────────────────────────────────────────────────────────────

func TestDispute_OverturnScenario(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	a := h.register("a", domain.RoleStandard)
	b := h.register("b", domain.RoleStandard)
	admin := h.register("root", domain.RoleAdmin)
	sub := h.submit(b, h.post(a).ID)

	if _, err := h.engine.Review(ctx, a, sub.ID, domain.DecisionReject, "not liked"); err != nil {
		t.Fatalf("Review() error: %v", err)
	}
	if _, err := h.engine.Dispute(ctx, a, sub.ID, "x"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("dispute by owner error = %v, want ErrUnauthorized", err)
	}
	d, err := h.engine.Dispute(ctx, b, sub.ID, "I did like it")
	if err != nil {
		t.Fatalf("Dispute() error: %v", err)
	}
	if d.Status != domain.StatusDisputed || !d.Disputed {
		t.Errorf("disputed = %+v", d)
	}
	if d.RejectionReason != "not liked" || d.DisputeMessage != "I did like it" {
		t.Errorf("reason/message = %q/%q", d.RejectionReason, d.DisputeMessage)
	}

	queue, err := h.engine.DisputeQueue(ctx, admin, 0)
	if err != nil {
		t.Fatalf("DisputeQueue() error: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != sub.ID {
		t.Errorf("DisputeQueue() = %+v, want [%s]", queue, sub.ID)
	}
	if _, err := h.engine.DisputeQueue(ctx, a, 0); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("DisputeQueue() by standard error = %v, want ErrUnauthorized", err)
	}

	if _, err := h.engine.ResolveDispute(ctx, b, sub.ID, domain.DisputeOverturn); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("ResolveDispute() by standard error = %v, want ErrUnauthorized", err)
	}
	res, err := h.engine.ResolveDispute(ctx, admin, sub.ID, domain.DisputeOverturn)
	if err != nil {
		t.Fatalf("ResolveDispute() error: %v", err)
	}
	if !res.Applied || res.Submission.Status != domain.StatusVerified {
		t.Fatalf("ResolveDispute() = %+v, want applied VERIFIED", res)
	}
	if res.Submission.Disputed || !res.Submission.DisputeResolved {
		t.Errorf("flags = disputed %v resolved %v", res.Submission.Disputed, res.Submission.DisputeResolved)
	}
	if got := h.balance("b"); got != 105 {
		t.Errorf("B balance = %d, want 105", got)
	}

	// Double click: no second payout.
	res, err = h.engine.ResolveDispute(ctx, admin, sub.ID, domain.DisputeOverturn)
	if err != nil {
		t.Fatalf("second ResolveDispute() error: %v", err)
	}
	if res.Applied {
		t.Error("second resolve applied")
	}
	if got := h.balance("b"); got != 105 {
		t.Errorf("B balance after double resolve = %d, want 105", got)
	}
	payout, err := h.db.GetPayout(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetPayout() error: %v", err)
	}
	if payout.Reason != domain.TxDisputePayout {
		t.Errorf("payout reason = %s, want DISPUTE_PAYOUT", payout.Reason)
	}
	h.assertConserved()
}

func TestDispute_UpholdIsFinal(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	a := h.register("a", domain.RoleStandard)
	b := h.register("b", domain.RoleStandard)
	admin := h.register("root", domain.RoleAdmin)
	sub := h.submit(b, h.post(a).ID)

	if _, err := h.engine.Review(ctx, a, sub.ID, domain.DecisionReject, "no"); err != nil {
		t.Fatalf("Review() error: %v", err)
	}
	if _, err := h.engine.Dispute(ctx, b, sub.ID, ""); err != nil {
		t.Fatalf("Dispute() error: %v", err)
	}
	res, err := h.engine.ResolveDispute(ctx, admin, sub.ID, domain.DisputeUphold)
	if err != nil {
		t.Fatalf("ResolveDispute() error: %v", err)
	}
	if res.Submission.Status != domain.StatusRejected || !res.Submission.DisputeResolved || res.Submission.Disputed {
		t.Errorf("upheld = %+v", res.Submission)
	}
	if got := h.balance("b"); got != 100 {
		t.Errorf("B balance = %d, want 100", got)
	}

	if _, err := h.engine.Dispute(ctx, b, sub.ID, "again"); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("second dispute error = %v, want ErrInvalidState", err)
	}
	res, err = h.engine.ResolveDispute(ctx, admin, sub.ID, domain.DisputeOverturn)
	if err != nil || res.Applied {
		t.Errorf("resolve after uphold = %+v, %v; want no-op", res, err)
	}
	h.assertConserved()
}

func TestDispute_InvalidStates(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	a := h.register("a", domain.RoleStandard)
	b := h.register("b", domain.RoleStandard)
	admin := h.register("root", domain.RoleAdmin)
	sub := h.submit(b, h.post(a).ID)

	if _, err := h.engine.Dispute(ctx, b, sub.ID, "why"); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("dispute PENDING error = %v, want ErrInvalidState", err)
	}
	if _, err := h.engine.ResolveDispute(ctx, admin, sub.ID, domain.DisputeOverturn); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("resolve PENDING error = %v, want ErrInvalidState", err)
	}
	if _, err := h.engine.Review(ctx, a, sub.ID, domain.DecisionApprove, ""); err != nil {
		t.Fatalf("Review() error: %v", err)
	}
	if _, err := h.engine.Dispute(ctx, b, sub.ID, "why"); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("dispute APPROVED error = %v, want ErrInvalidState", err)
	}
}

// ─── Sweeper ────────────────────────────────────────────────────────────────

func TestSweep_AutoApproves(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	a := h.register("a", domain.RoleStandard)
	b := h.register("b", domain.RoleStandard)
	c := h.register("c", domain.RoleStandard)
	p := h.post(a)

	old := h.submit(b, p.ID)
	h.clock.Advance(11 * time.Hour)
	fresh := h.submit(c, p.ID)
	h.clock.Advance(time.Hour + time.Minute)

	res, err := h.engine.SweepDue(ctx)
	if err != nil {
		t.Fatalf("SweepDue() error: %v", err)
	}
	if res.Scanned != 1 || res.Approved != 1 {
		t.Errorf("SweepDue() = %+v, want 1 scanned 1 approved", res)
	}
	got := h.status(old.ID)
	if got.Status != domain.StatusApproved || got.DecidedBy != domain.DecidedByTimeout {
		t.Errorf("old = %s by %q, want APPROVED by timeout", got.Status, got.DecidedBy)
	}
	if got := h.status(fresh.ID).Status; got != domain.StatusPending {
		t.Errorf("fresh = %s, want PENDING", got)
	}
	if got := h.balance("b"); got != 105 {
		t.Errorf("B balance = %d, want 105", got)
	}

	// A second run pays nobody twice.
	res, err = h.engine.SweepDue(ctx)
	if err != nil {
		t.Fatalf("second SweepDue() error: %v", err)
	}
	if res.Approved != 0 {
		t.Errorf("second sweep approved %d", res.Approved)
	}
	if got := h.balance("b"); got != 105 {
		t.Errorf("B balance after second sweep = %d, want 105", got)
	}
	h.assertConserved()
}

func TestSweep_RacesReview(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	a := h.register("a", domain.RoleStandard)
	b := h.register("b", domain.RoleStandard)
	sub := h.submit(b, h.post(a).ID)
	h.clock.Advance(13 * time.Hour)

	var wg sync.WaitGroup
	var reviewRes domain.Result
	var sweepRes SweepResult
	var reviewErr, sweepErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		reviewRes, reviewErr = h.engine.Review(ctx, a, sub.ID, domain.DecisionApprove, "")
	}()
	go func() {
		defer wg.Done()
		sweepRes, sweepErr = h.engine.SweepDue(ctx)
	}()
	wg.Wait()

	if reviewErr != nil || sweepErr != nil {
		t.Fatalf("errors: review %v, sweep %v", reviewErr, sweepErr)
	}
	applied := sweepRes.Approved
	if reviewRes.Applied {
		applied++
	}
	if applied != 1 {
		t.Errorf("approvals applied = %d, want exactly 1", applied)
	}
	if got := h.balance("b"); got != 105 {
		t.Errorf("B balance = %d, want 105", got)
	}
	h.assertConserved()
}

func TestSweep_PagesPastFailures(t *testing.T) {
	h := newHarness(t, testPolicy())
	h.engine.sweepBatch = 2
	ctx := context.Background()
	owner := h.register("owner", domain.RoleStandard)
	p := h.post(owner)

	var subs []domain.Submission
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		subs = append(subs, h.submit(h.register(id, domain.RoleStandard), p.ID))
		h.clock.Advance(time.Minute)
	}
	// The two oldest can never be approved.
	for _, sub := range subs[:2] {
		err := h.db.WithTx(ctx, func(tx domain.Tx) error {
			return tx.InsertPayout(ctx, domain.Payout{
				SubmissionID: sub.ID, ActorID: sub.SubmitterID, Amount: 5, Reason: domain.TxReward, PaidAt: h.clock.Now(),
			})
		})
		if err != nil {
			t.Fatalf("InsertPayout() error: %v", err)
		}
	}
	h.clock.Advance(13 * time.Hour)

	res, err := h.engine.SweepDue(ctx)
	if err != nil {
		t.Fatalf("SweepDue() error: %v", err)
	}
	if res.Scanned != 5 || res.Failed != 2 || res.Approved != 3 {
		t.Errorf("SweepDue() = %+v, want 5 scanned 2 failed 3 approved", res)
	}
	for _, sub := range subs[2:] {
		if got := h.status(sub.ID).Status; got != domain.StatusApproved {
			t.Errorf("%s = %s, want APPROVED", sub.SubmitterID, got)
		}
	}
}

func TestSweep_CutoffIsExclusive(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	owner := h.register("owner", domain.RoleStandard)
	sub := h.submit(h.register("bob", domain.RoleStandard), h.post(owner).ID)

	res, err := h.engine.Sweep(ctx, sub.CreatedAt.Add(12*time.Hour), 12*time.Hour)
	if err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}
	if res.Scanned != 0 {
		t.Errorf("Sweep() at exactly the timeout = %+v, want nothing scanned", res)
	}
	res, err = h.engine.Sweep(ctx, sub.CreatedAt.Add(12*time.Hour+time.Millisecond), 12*time.Hour)
	if err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}
	if res.Approved != 1 {
		t.Errorf("Sweep() past the timeout = %+v, want 1 approved", res)
	}
}

func TestSweep_SpanRecordsFailure(t *testing.T) {
	h := newHarness(t, testPolicy())
	tracer := observability.NewTracer(observability.TracerConfig{Enabled: true, MaxSpans: 10})
	h.engine.tracer = tracer

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.engine.SweepDue(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("SweepDue() error = %v, want context.Canceled", err)
	}
	spans := tracer.Spans(10)
	if len(spans) != 1 || spans[0].Operation != "sweep" {
		t.Fatalf("spans = %+v, want one sweep span", spans)
	}
	if spans[0].Status != observability.SpanError {
		t.Errorf("sweep span status = %v, want SpanError", spans[0].Status)
	}
}

func TestSweep_Concurrent(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	owner := h.register("owner", domain.RoleStandard)
	p := h.post(owner)
	ids := []string{"s1", "s2", "s3", "s4"}
	for _, id := range ids {
		h.submit(h.register(id, domain.RoleStandard), p.ID)
	}
	h.clock.Advance(24 * time.Hour)

	var wg sync.WaitGroup
	results := make([]SweepResult, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.engine.SweepDue(ctx)
			if err != nil {
				t.Errorf("SweepDue() error: %v", err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += r.Approved
	}
	if total != len(ids) {
		t.Errorf("approved across sweeps = %d, want %d", total, len(ids))
	}
	for _, id := range ids {
		if got := h.balance(id); got != 105 {
			t.Errorf("%s balance = %d, want 105", id, got)
		}
	}
	h.assertConserved()
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewSweeper(h.engine, time.Hour).Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

// ─── Post Deletion ──────────────────────────────────────────────────────────

func TestDeletePost_SettlesPending(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	owner := h.register("owner", domain.RoleStandard)
	b := h.register("b", domain.RoleStandard)
	c := h.register("c", domain.RoleStandard)
	p := h.post(owner)
	pending := h.submit(b, p.ID)
	rejected := h.submit(c, p.ID)
	if _, err := h.engine.Review(ctx, owner, rejected.ID, domain.DecisionReject, "no"); err != nil {
		t.Fatalf("Review() error: %v", err)
	}

	if _, err := h.engine.DeletePost(ctx, b, p.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("DeletePost() by non-owner error = %v, want ErrUnauthorized", err)
	}
	res, err := h.engine.DeletePost(ctx, owner, p.ID)
	if err != nil {
		t.Fatalf("DeletePost() error: %v", err)
	}
	if len(res.Approved) != 1 || res.Approved[0] != pending.ID {
		t.Errorf("Approved = %v, want [%s]", res.Approved, pending.ID)
	}
	got := h.status(pending.ID)
	if got.Status != domain.StatusApproved || got.DecidedBy != domain.DecidedByPostDeleted {
		t.Errorf("pending = %s by %q", got.Status, got.DecidedBy)
	}
	if got := h.status(rejected.ID).Status; got != domain.StatusRejected {
		t.Errorf("rejected = %s, want REJECTED", got)
	}
	if got := h.balance("b"); got != 105 {
		t.Errorf("B balance = %d, want 105", got)
	}

	// A rejected submitter can still dispute after the post is gone.
	if _, err := h.engine.Dispute(ctx, c, rejected.ID, "please"); err != nil {
		t.Errorf("Dispute() on deleted post error: %v", err)
	}
	if _, err := h.engine.DeletePost(ctx, owner, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second DeletePost() error = %v, want ErrNotFound", err)
	}
	h.assertConserved()
}

func TestDeletePost_RollsBack(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	owner := h.register("owner", domain.RoleStandard)
	b := h.register("b", domain.RoleStandard)
	c := h.register("c", domain.RoleStandard)
	p := h.post(owner)
	first := h.submit(b, p.ID)
	second := h.submit(c, p.ID)

	// A stray payout row makes the second approval fail.
	err := h.db.WithTx(ctx, func(tx domain.Tx) error {
		return tx.InsertPayout(ctx, domain.Payout{
			SubmissionID: second.ID, ActorID: "c", Amount: 5, Reason: domain.TxReward, PaidAt: h.clock.Now(),
		})
	})
	if err != nil {
		t.Fatalf("InsertPayout() error: %v", err)
	}

	if _, err := h.engine.DeletePost(ctx, owner, p.ID); !errors.Is(err, domain.ErrAlreadyPaid) {
		t.Fatalf("DeletePost() error = %v, want ErrAlreadyPaid", err)
	}
	for _, id := range []string{first.ID, second.ID} {
		if got := h.status(id).Status; got != domain.StatusPending {
			t.Errorf("%s = %s, want PENDING", id, got)
		}
	}
	post, err := h.db.GetPost(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}
	if post.Deleted() {
		t.Error("post deleted despite failed cascade")
	}
	if got := h.balance("b"); got != 100 {
		t.Errorf("B balance = %d, want 100", got)
	}
	h.assertConserved()
}

// ─── Reads ──────────────────────────────────────────────────────────────────

func TestReads(t *testing.T) {
	h := newHarness(t, testPolicy())
	ctx := context.Background()
	owner := h.register("owner", domain.RoleStandard)
	b := h.register("b", domain.RoleStandard)
	stranger := h.register("stranger", domain.RoleStandard)
	admin := h.register("root", domain.RoleAdmin)
	p := h.post(owner)
	sub := h.submit(b, p.ID)

	n, err := h.engine.PendingCount(ctx, owner)
	if err != nil || n != 1 {
		t.Errorf("PendingCount() = %d, %v; want 1", n, err)
	}
	sent, err := h.engine.Sent(ctx, b, 0)
	if err != nil || len(sent) != 1 {
		t.Errorf("Sent() = %d, %v; want 1", len(sent), err)
	}
	recv, err := h.engine.Received(ctx, owner, 0)
	if err != nil || len(recv) != 1 || recv[0].SubmitterHandle != "b" {
		t.Errorf("Received() = %+v, %v", recv, err)
	}

	feed, err := h.engine.Feed(ctx, b, 0, 20)
	if err != nil {
		t.Fatalf("Feed() error: %v", err)
	}
	if len(feed) != 0 {
		t.Errorf("feed for submitter has %d posts, want 0", len(feed))
	}
	feed, err = h.engine.Feed(ctx, stranger, 0, 20)
	if err != nil || len(feed) != 1 {
		t.Errorf("Feed() for stranger = %d, %v; want 1", len(feed), err)
	}

	for _, caller := range []domain.ActorContext{owner, b, admin} {
		if _, err := h.engine.Submission(ctx, caller, sub.ID); err != nil {
			t.Errorf("Submission() by %s error: %v", caller.ID, err)
		}
	}
	if _, err := h.engine.Submission(ctx, stranger, sub.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("Submission() by stranger error = %v, want ErrUnauthorized", err)
	}

	rc, err := h.engine.OpenProof(ctx, owner, sub.ID)
	if err != nil {
		t.Fatalf("OpenProof() error: %v", err)
	}
	rc.Close()

	entries, err := h.engine.LedgerEntries(ctx, owner, "", 0)
	if err != nil {
		t.Fatalf("LedgerEntries() error: %v", err)
	}
	if len(entries) != 2 || entries[0].Type != domain.TxPostingFee {
		t.Errorf("LedgerEntries() = %+v, want fee then grant", entries)
	}
	if _, err := h.engine.LedgerEntries(ctx, b, domain.TreasuryAccount, 0); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("treasury entries by standard error = %v, want ErrUnauthorized", err)
	}
	report, err := h.engine.Treasury(ctx, admin)
	if err != nil {
		t.Fatalf("Treasury() error: %v", err)
	}
	if report.Total != 0 || report.Treasury != -400+25 {
		t.Errorf("Treasury() = %+v", report)
	}
}
