package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"storefront/client"
	models "storefront/model"
)

// ---- fakeUsers implementing UserRemote ----
type fakeUsers struct {
	SignInFn func(ctx context.Context, email, password string) (client.SignInResult, error)
	SignUpFn func(ctx context.Context, email, first, last, password string) (string, error)
	UsersFn  func(ctx context.Context, token string) ([]models.User, error)
}

func (f *fakeUsers) SignIn(ctx context.Context, email, password string) (client.SignInResult, error) {
	return f.SignInFn(ctx, email, password)
}
func (f *fakeUsers) SignUp(ctx context.Context, email, first, last, password string) (string, error) {
	return f.SignUpFn(ctx, email, first, last, password)
}
func (f *fakeUsers) Users(ctx context.Context, token string) ([]models.User, error) {
	return f.UsersFn(ctx, token)
}

// ---- fakeCatalog implementing CatalogRemote ----
type fakeCatalog struct {
	ProductsFn   func(ctx context.Context) ([]models.Product, error)
	CategoriesFn func(ctx context.Context) ([]models.Category, error)
	ProductFn    func(ctx context.Context, id int64) (models.Product, error)
}

func (f *fakeCatalog) Products(ctx context.Context) ([]models.Product, error) {
	return f.ProductsFn(ctx)
}
func (f *fakeCatalog) Categories(ctx context.Context) ([]models.Category, error) {
	return f.CategoriesFn(ctx)
}
func (f *fakeCatalog) Product(ctx context.Context, id int64) (models.Product, error) {
	return f.ProductFn(ctx, id)
}

func newTestService(d Deps) (*Service, *memStore) {
	ms := newMemStore()
	d.Store = ms
	if d.Cart == nil {
		d.Cart = &fakeCartRemote{}
	}
	if d.PurchaserID == 0 {
		d.PurchaserID = 1
	}
	return NewService(d), ms
}

// ---- Tests ----

func TestSignInStoresCredentialAndSessionRef(t *testing.T) {
	svc, ms := newTestService(Deps{
		Users: &fakeUsers{
			SignInFn: func(_ context.Context, email, password string) (client.SignInResult, error) {
				if email != "a@b.c" || password != "pw" {
					return client.SignInResult{}, models.RemoteError(400, "wrong password", "")
				}
				return client.SignInResult{Token: "tok", SessionID: "cs_1"}, nil
			},
		},
	})
	ctx := context.Background()

	// missing password
	if err := svc.SignIn(ctx, "s", "a@b.c", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	// rejected by the user service
	if err := svc.SignIn(ctx, "s", "a@b.c", "bad"); err == nil || err.Error() != "wrong password" {
		t.Fatalf("expected server text, got %v", err)
	}

	if err := svc.SignIn(ctx, "s", "a@b.c", "pw"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok, _ := ms.Credential(ctx, "s"); tok != "tok" {
		t.Fatalf("expected token stored, got %q", tok)
	}
	if ref, _ := ms.SessionRef(ctx, "s"); ref != "cs_1" {
		t.Fatalf("expected session ref stored, got %q", ref)
	}
}

func TestSignUpWithoutTokenStoresNothing(t *testing.T) {
	svc, ms := newTestService(Deps{
		Users: &fakeUsers{
			SignUpFn: func(context.Context, string, string, string, string) (string, error) { return "", nil },
		},
	})
	ctx := context.Background()

	if err := svc.SignUp(ctx, "s", SignUpRequest{Email: "a@b.c", Password: "pw"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ms.Credential(ctx, "s"); err == nil {
		t.Fatalf("expected no credential stored")
	}
}

func TestSignOutResetsCart(t *testing.T) {
	remote := &fakeCartRemote{
		CartFn: func(context.Context, string) (models.CartSnapshot, error) {
			return cartOf(lineItem(1, 7, "mug", 10, 1)), nil
		},
	}
	svc, ms := newTestService(Deps{Cart: remote})
	ctx := context.Background()
	_ = ms.SetCredential(ctx, "s", "tok")

	if _, err := svc.LoadCart(ctx, "s"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := svc.SignOut(ctx, "s"); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if v := svc.Cart("s"); v.Status != models.CartLoading || len(v.Snapshot.Items) != 0 {
		t.Fatalf("expected a reset cart, got %+v", v)
	}
	if _, err := svc.LoadCart(ctx, "s"); !errors.Is(err, models.ErrAuth) {
		t.Fatalf("expected auth error after sign out, got %v", err)
	}
}

func TestUsersNeedsCredential(t *testing.T) {
	called := false
	svc, ms := newTestService(Deps{
		Users: &fakeUsers{
			UsersFn: func(_ context.Context, token string) ([]models.User, error) {
				called = true
				return []models.User{{ID: 1, Email: "a@b.c"}}, nil
			},
		},
	})
	ctx := context.Background()

	if _, err := svc.Users(ctx, "s"); !errors.Is(err, models.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if called {
		t.Fatalf("user service must not be called without a credential")
	}

	_ = ms.SetCredential(ctx, "s", "tok")
	users, err := svc.Users(ctx, "s")
	if err != nil || len(users) != 1 {
		t.Fatalf("expected one user, got %v (%v)", users, err)
	}
}

func TestSessionsHaveSeparateCarts(t *testing.T) {
	remote := &fakeCartRemote{
		CartFn: func(_ context.Context, token string) (models.CartSnapshot, error) {
			if token == "tok-a" {
				return cartOf(lineItem(1, 7, "mug", 10, 1)), nil
			}
			return cartOf(lineItem(2, 8, "cup", 5, 3), lineItem(3, 9, "pot", 4, 1)), nil
		},
	}
	svc, ms := newTestService(Deps{Cart: remote})
	ctx := context.Background()
	_ = ms.SetCredential(ctx, "a", "tok-a")
	_ = ms.SetCredential(ctx, "b", "tok-b")

	va, err := svc.LoadCart(ctx, "a")
	if err != nil {
		t.Fatalf("load a: %v", err)
	}
	vb, err := svc.LoadCart(ctx, "b")
	if err != nil {
		t.Fatalf("load b: %v", err)
	}
	if len(va.Snapshot.Items) != 1 || len(vb.Snapshot.Items) != 2 {
		t.Fatalf("carts leaked between sessions: %+v / %+v", va, vb)
	}
	if svc.engine("a") != svc.engine("a") {
		t.Fatalf("expected one engine per session")
	}
}

func TestEmptySessionRejected(t *testing.T) {
	svc, _ := newTestService(Deps{})
	ctx := context.Background()

	if _, err := svc.LoadCart(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.IncreaseQuantity(ctx, "", 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.ConfirmCheckout(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestStageCheckoutLoadsAndSettlesCart(t *testing.T) {
	release := make(chan struct{})
	remote := &fakeCartRemote{
		CartFn: func(context.Context, string) (models.CartSnapshot, error) {
			return cartOf(lineItem(1, 7, "mug", 10, 2)), nil
		},
		UpdateFn: func(context.Context, string, client.UpdateItem) error {
			<-release
			return errors.New("rejected")
		},
	}
	svc, ms := newTestService(Deps{Cart: remote, PurchaserID: 42})
	ctx := context.Background()
	_ = ms.SetCredential(ctx, "s", "tok")

	// never loaded: StageCheckout loads first
	st, err := svc.StageCheckout(ctx, "s")
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if len(st.Items) != 1 || st.Items[0].PurchaserID != 42 {
		t.Fatalf("unexpected staging %+v", st)
	}

	// an outstanding write is finished (and here rolled back) before staging
	if _, err := svc.IncreaseQuantity(ctx, "s", 1); err != nil {
		t.Fatalf("increase: %v", err)
	}
	go func() {
		time.Sleep(5 * time.Millisecond)
		close(release)
	}()
	st, err = svc.StageCheckout(ctx, "s")
	if err != nil {
		t.Fatalf("restage: %v", err)
	}
	if st.Items[0].Quantity != 2 || !st.TotalAmount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected the settled cart to be staged, got %+v", st)
	}
}

func TestStageCheckoutUnauthenticated(t *testing.T) {
	svc, _ := newTestService(Deps{})
	if _, err := svc.StageCheckout(context.Background(), "s"); !errors.Is(err, models.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestStageCheckoutAfterFailedLoadKeepsStaging(t *testing.T) {
	down := false
	remote := &fakeCartRemote{
		CartFn: func(context.Context, string) (models.CartSnapshot, error) {
			if down {
				return models.CartSnapshot{}, models.RemoteError(503, "cart service down", "")
			}
			return cartOf(lineItem(1, 7, "mug", 10, 2)), nil
		},
	}
	svc, ms := newTestService(Deps{Cart: remote})
	ctx := context.Background()
	_ = ms.SetCredential(ctx, "s", "tok")

	if _, err := svc.StageCheckout(ctx, "s"); err != nil {
		t.Fatalf("stage: %v", err)
	}

	down = true
	if v, err := svc.LoadCart(ctx, "s"); err == nil || v.Status != models.CartError {
		t.Fatalf("expected failed load, got %+v (%v)", v, err)
	}
	if _, err := svc.StageCheckout(ctx, "s"); !errors.Is(err, models.ErrRemote) {
		t.Fatalf("expected remote error, got %v", err)
	}

	st, err := svc.StagedCheckout(ctx, "s")
	if err != nil {
		t.Fatalf("staged: %v", err)
	}
	if len(st.Items) != 1 || !st.TotalAmount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("earlier staging was overwritten: %+v", st)
	}

	// once the cart service is back, staging reloads instead of staging nothing
	down = false
	if st, err = svc.StageCheckout(ctx, "s"); err != nil || len(st.Items) != 1 {
		t.Fatalf("expected a reloaded staging, got %+v (%v)", st, err)
	}
}

func TestUnknownSessionGetsNoEngine(t *testing.T) {
	svc, ms := newTestService(Deps{})
	ctx := context.Background()

	if v := svc.Cart("ghost"); v.Status != models.CartLoading || len(v.Snapshot.Items) != 0 {
		t.Fatalf("expected a loading view, got %+v", v)
	}
	v, err := svc.LoadCart(ctx, "ghost")
	if !errors.Is(err, models.ErrAuth) || v.Status != models.CartUnauthenticated {
		t.Fatalf("expected unauthenticated view, got %+v (%v)", v, err)
	}
	if _, err := svc.IncreaseQuantity(ctx, "ghost", 1); !errors.Is(err, models.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if _, ok := svc.lookup("ghost"); ok {
		t.Fatalf("an engine was registered for a session without a credential")
	}

	_ = ms.SetCredential(ctx, "ghost", "tok")
	if _, err := svc.LoadCart(ctx, "ghost"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := svc.lookup("ghost"); !ok {
		t.Fatalf("expected an engine once signed in")
	}
	if err := svc.SignOut(ctx, "ghost"); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, ok := svc.lookup("ghost"); ok {
		t.Fatalf("expected sign out to drop the engine")
	}
}

func TestSignInWithoutSessionRefClearsOldOne(t *testing.T) {
	svc, ms := newTestService(Deps{
		Users: &fakeUsers{
			SignInFn: func(context.Context, string, string) (client.SignInResult, error) {
				return client.SignInResult{Token: "tok2"}, nil
			},
		},
	})
	ctx := context.Background()
	_ = ms.SetCredential(ctx, "s", "tok1")
	_ = ms.SetSessionRef(ctx, "s", "cs_old")

	if err := svc.SignIn(ctx, "s", "a@b.c", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if ref, err := ms.SessionRef(ctx, "s"); err == nil {
		t.Fatalf("expected stale session ref cleared, got %q", ref)
	}
	if tok, _ := ms.Credential(ctx, "s"); tok != "tok2" {
		t.Fatalf("expected new token stored, got %q", tok)
	}
}

func TestShutdownDrainsEveryEngine(t *testing.T) {
	var done int32
	remote := &fakeCartRemote{
		CartFn: func(context.Context, string) (models.CartSnapshot, error) {
			return cartOf(lineItem(1, 7, "mug", 10, 2)), nil
		},
		UpdateFn: func(context.Context, string, client.UpdateItem) error {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&done, 1)
			return nil
		},
	}
	svc, ms := newTestService(Deps{Cart: remote})
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c"} {
		_ = ms.SetCredential(ctx, s, "tok")
		if _, err := svc.LoadCart(ctx, s); err != nil {
			t.Fatalf("load %s: %v", s, err)
		}
		if _, err := svc.IncreaseQuantity(ctx, s, 1); err != nil {
			t.Fatalf("increase %s: %v", s, err)
		}
	}

	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := atomic.LoadInt32(&done); got != 3 {
		t.Fatalf("expected 3 finished writes, got %d", got)
	}
}

func TestBrowseFiltersProducts(t *testing.T) {
	svc, _ := newTestService(Deps{
		Catalog: &fakeCatalog{
			ProductsFn: func(context.Context) ([]models.Product, error) {
				return []models.Product{
					{ID: 1, Title: "Gold Ring", Category: "jewelery"},
					{ID: 2, Title: "Silver ring", Category: "jewelery"},
					{ID: 3, Title: "Ring Light", Category: "electronics"},
				}, nil
			},
			CategoriesFn: func(context.Context) ([]models.Category, error) {
				return []models.Category{{ID: 1, Name: "electronics"}, {ID: 2, Name: "jewelery"}}, nil
			},
		},
	})

	page, err := svc.Browse(context.Background(), Filter{Category: "jewelery", Query: "RING"})
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	if len(page.Products) != 2 || len(page.Categories) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}

	page, err = svc.Browse(context.Background(), Filter{Query: "light"})
	if err != nil || len(page.Products) != 1 || page.Products[0].ID != 3 {
		t.Fatalf("expected the ring light only, got %+v (%v)", page.Products, err)
	}
}

func TestBrowseFailsWhenEitherCallFails(t *testing.T) {
	svc, _ := newTestService(Deps{
		Catalog: &fakeCatalog{
			ProductsFn: func(context.Context) ([]models.Product, error) { return nil, nil },
			CategoriesFn: func(context.Context) ([]models.Category, error) {
				return nil, models.RemoteError(500, "", "Failed to fetch categories")
			},
		},
	})
	if _, err := svc.Browse(context.Background(), Filter{}); !errors.Is(err, models.ErrRemote) {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestProductLookupsShareOneCall(t *testing.T) {
	var calls int32
	gate := make(chan struct{})
	svc, _ := newTestService(Deps{
		Catalog: &fakeCatalog{
			ProductFn: func(_ context.Context, id int64) (models.Product, error) {
				atomic.AddInt32(&calls, 1)
				<-gate
				return models.Product{ID: id, Title: "mug"}, nil
			},
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := svc.Product(context.Background(), 7)
			if err != nil || p.ID != 7 {
				t.Errorf("unexpected product %+v (%v)", p, err)
			}
		}()
	}
	time.Sleep(10 * time.Millisecond)
	close(gate)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got < 1 || got > 5 {
		t.Fatalf("unexpected call count %d", got)
	}
	if _, err := svc.Product(context.Background(), 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for id 0, got %v", err)
	}
}

func TestProductLookupSurvivesCancelledCaller(t *testing.T) {
	started := make(chan struct{})
	gate := make(chan struct{})
	remoteErrs := make(chan error, 2)
	svc, _ := newTestService(Deps{
		Catalog: &fakeCatalog{
			ProductFn: func(ctx context.Context, id int64) (models.Product, error) {
				select {
				case <-started:
				default:
					close(started)
				}
				<-gate
				remoteErrs <- ctx.Err()
				return models.Product{ID: id, Title: "mug"}, nil
			},
		},
	})

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Product(first, 7)
		firstErr <- err
	}()
	<-started

	second := make(chan error, 1)
	go func() {
		p, err := svc.Product(context.Background(), 7)
		if err == nil && p.ID != 7 {
			err = errors.New("wrong product")
		}
		second <- err
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancelled caller to stop, got %v", err)
	}
	close(gate)
	if err := <-second; err != nil {
		t.Fatalf("expected the other caller to get the product, got %v", err)
	}
	if err := <-remoteErrs; err != nil {
		t.Fatalf("shared lookup ran on a cancelled context: %v", err)
	}
}
