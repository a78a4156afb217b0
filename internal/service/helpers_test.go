package service

import (
	"context"
	"errors"
	"escrita_backend/internal/config"
	"escrita_backend/internal/model"
	"escrita_backend/internal/repository"
	"escrita_backend/internal/testutil"
	"sync"
	"testing"

	"gorm.io/gorm"
)

// fakeProvider 记录所有发出的邮件
type fakeProvider struct {
	mu   sync.Mutex
	sent []*EmailMessage
	err  error
}

func (p *fakeProvider) Send(_ context.Context, msg *EmailMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakeProvider) templates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.sent))
	for _, m := range p.sent {
		names = append(names, m.Template)
	}
	return names
}

// fakeGateway 可以设定返回值的支付网关
type fakeGateway struct {
	mu        sync.Mutex
	checkouts []GatewayOrder
	refunds   []string
	cancels   []string
	status    *GatewayStatus
	err       error
}

var errGatewayDown = errors.New("gateway down")

func (g *fakeGateway) CreateCheckout(_ context.Context, order GatewayOrder) (*GatewayCheckout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.checkouts = append(g.checkouts, order)
	return &GatewayCheckout{Token: "snap-" + order.OrderID, RedirectURL: "https://pay.example/" + order.OrderID}, nil
}

func (g *fakeGateway) Status(_ context.Context, orderID string) (*GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	if g.status == nil {
		return &GatewayStatus{TransactionStatus: "pending"}, nil
	}
	return g.status, nil
}

func (g *fakeGateway) Cancel(_ context.Context, orderID string) (*GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.cancels = append(g.cancels, orderID)
	return &GatewayStatus{TransactionStatus: "cancel"}, nil
}

func (g *fakeGateway) Refund(_ context.Context, orderID string, amount int64, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.refunds = append(g.refunds, orderID)
	return nil
}

// testEnv 基于 sqlite 组装好的全部服务
type testEnv struct {
	db          *gorm.DB
	cfg         *config.Config
	provider    *fakeProvider
	gateway     *fakeGateway
	tokens      *MemoryTokenStore
	email       *EmailService
	auth        *AuthService
	achievement *AchievementService
	course      *CourseService
	submission  *SubmissionService
	user        *UserService
	payment     *PaymentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t)
	cfg := testutil.TestConfig(t)

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	achievementRepo := repository.NewAchievementRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	env := &testEnv{
		db:       db,
		cfg:      cfg,
		provider: &fakeProvider{},
		gateway:  &fakeGateway{},
		tokens:   NewMemoryTokenStore(),
	}
	env.email = NewEmailService(env.provider, cfg)
	storage := NewStorageService(cfg)

	env.auth = NewAuthService(userRepo, env.tokens, env.email, cfg)
	env.achievement = NewAchievementService(db, achievementRepo, submissionRepo, progressRepo, courseRepo, userRepo, env.email)
	env.course = NewCourseService(db, courseRepo, progressRepo, env.achievement, storage)
	env.submission = NewSubmissionService(db, submissionRepo, userRepo, env.achievement, storage, env.email)
	env.user = NewUserService(userRepo, progressRepo, achievementRepo, env.submission, storage)
	env.payment = NewPaymentService(db, paymentRepo, userRepo, env.gateway, env.email, &cfg.Payment)

	t.Cleanup(env.email.Wait)
	return env
}

func (e *testEnv) student(t *testing.T, name string) *model.User {
	return testutil.CreateUser(t, e.db, name, name+"@example.com", model.Student)
}

func (e *testEnv) instructor(t *testing.T) *model.User {
	return testutil.CreateUser(t, e.db, "Professora", "prof@example.com", model.Instructor)
}

func codes(achievements []model.Achievement) []string {
	out := make([]string, 0, len(achievements))
	for _, a := range achievements {
		out = append(out, a.Code)
	}
	return out
}
