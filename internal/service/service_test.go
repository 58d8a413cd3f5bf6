package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/fitback/internal/database"
	"github.com/iliyamo/fitback/internal/logging"
	"github.com/iliyamo/fitback/internal/model"
	"github.com/iliyamo/fitback/internal/notify"
	"github.com/iliyamo/fitback/internal/repository"
	"github.com/iliyamo/fitback/internal/utils"
)

type outbox struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (o *outbox) Dispatch(_ context.Context, n notify.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, n)
	return nil
}

func (o *outbox) last(kind notify.Kind) (notify.Notification, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].Kind == kind {
			return o.sent[i], true
		}
	}
	return notify.Notification{}, false
}

type fixture struct {
	mem      *repository.Memory
	box      *outbox
	notifier *Notifier
	auth     *AuthService
	users    *UserService
	tokens   *utils.TokenIssuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := repository.NewMemory()
	box := &outbox{}
	n := NewNotifier(box, logging.Nop{})
	hasher := utils.NewPasswordHasher(bcrypt.MinCost)
	issuer := utils.NewTokenIssuer("test-secret", time.Hour)
	opts := AuthOptions{
		VerificationTTL:            24 * time.Hour,
		ResetTTL:                   time.Hour,
		SendVerificationOnRegister: true,
		PublicBaseURL:              "http://localhost:5005",
	}
	return &fixture{
		mem:      mem,
		box:      box,
		notifier: n,
		auth:     NewAuthService(mem, mem, &hasher, issuer, n, logging.Nop{}, opts),
		users:    NewUserService(mem, mem, &hasher, n, logging.Nop{}),
		tokens:   issuer,
	}
}

func (f *fixture) register(t *testing.T, email, password, username string) Session {
	t.Helper()
	s, err := f.auth.Register(context.Background(), RegisterInput{Email: email, Password: password, Username: username})
	require.NoError(t, err)
	return s
}

func TestRegisterThenLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg := f.register(t, "a@x.com", "Passw0rd!", "userA")
	assert.NotZero(t, reg.User.ID)
	assert.False(t, reg.User.EmailVerified)
	assert.NotEmpty(t, reg.Token.Token)

	login, err := f.auth.Login(ctx, "a@x.com", "Passw0rd!")
	require.NoError(t, err)
	assert.NotEqual(t, reg.Token.Token, login.Token.Token)
	assert.NotNil(t, login.User.LastActivityAt)

	claims, err := f.tokens.Verify(login.Token.Token)
	require.NoError(t, err)
	assert.Equal(t, utils.Identity{UserID: reg.User.ID, Email: "a@x.com", Username: "userA"}, claims.Identity())
}

func TestRegisterSendsVerification(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "Passw0rd!", "userA")
	f.notifier.Wait()

	n, ok := f.box.last(notify.KindEmailVerification)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", n.To)
	assert.Equal(t, "http://localhost:5005/api/auth/verificar-email/"+n.Token, n.Link)
}

func TestRegisterDuplicateCreatesNoRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "Passw0rd!", "userA")

	_, err := f.auth.Register(ctx, RegisterInput{Email: "A@x.com", Password: "Passw0rd!", Username: "userB"})
	assert.Equal(t, KindEmailExists, KindOf(err))

	_, err = f.auth.Register(ctx, RegisterInput{Email: "b@x.com", Password: "Passw0rd!", Username: "userA"})
	assert.Equal(t, KindUsernameExists, KindOf(err))

	n, err := f.mem.Users(nil).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRegisterProfileComputesBMI(t *testing.T) {
	f := newFixture(t)
	h, w := 180.0, 81.0
	s, err := f.auth.Register(context.Background(), RegisterInput{
		Email: "a@x.com", Password: "Passw0rd!", Username: "userA",
		Profile: model.Profile{HeightCm: &h, WeightKg: &w},
	})
	require.NoError(t, err)
	require.NotNil(t, s.User.BMI)
	assert.Equal(t, 25.0, *s.User.BMI)
}

func TestRegisterSurvivesNotificationFailure(t *testing.T) {
	f := newFixture(t)
	f.box.err = errors.New("mail down")

	f.register(t, "a@x.com", "Passw0rd!", "userA")
	f.notifier.Wait()
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "Passw0rd!", "userA")

	_, wrongPass := f.auth.Login(ctx, "a@x.com", "nope")
	_, noUser := f.auth.Login(ctx, "ghost@x.com", "Passw0rd!")

	require.Error(t, wrongPass)
	require.Error(t, noUser)
	assert.Equal(t, KindInvalidCredentials, KindOf(wrongPass))
	assert.Equal(t, wrongPass.Error(), noUser.Error())
}

func TestRefreshReflectsVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "a@x.com", "Passw0rd!", "userA")
	f.notifier.Wait()

	n, _ := f.box.last(notify.KindEmailVerification)
	owner, err := f.auth.VerifyEmail(ctx, n.Token)
	require.NoError(t, err)
	assert.True(t, owner.EmailVerified)

	s, err := f.auth.RefreshToken(ctx, identityOf(reg.User))
	require.NoError(t, err)
	claims, err := f.tokens.Verify(s.Token.Token)
	require.NoError(t, err)
	assert.True(t, claims.EmailVerified)

	_, err = f.auth.VerifyEmail(ctx, n.Token)
	assert.Equal(t, KindInvalidToken, KindOf(err), "single use")
}

func TestRefreshDeletedUser(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "a@x.com", "Passw0rd!", "userA")
	require.NoError(t, f.users.DeleteAccount(context.Background(), reg.User.ID))

	_, err := f.auth.RefreshToken(context.Background(), identityOf(reg.User))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "Passw0rd!", "userA")

	require.NoError(t, f.auth.RequestPasswordReset(ctx, "a@x.com"))
	require.NoError(t, f.auth.RequestPasswordReset(ctx, "ghost@x.com"))
	f.notifier.Wait()

	n, ok := f.box.last(notify.KindPasswordReset)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", n.To)

	require.NoError(t, f.auth.ResetPassword(ctx, n.Token, "NewPass1!"))
	f.notifier.Wait()
	_, ok = f.box.last(notify.KindPasswordChanged)
	assert.True(t, ok)

	_, err := f.auth.Login(ctx, "a@x.com", "Passw0rd!")
	assert.Equal(t, KindInvalidCredentials, KindOf(err))
	_, err = f.auth.Login(ctx, "a@x.com", "NewPass1!")
	assert.NoError(t, err)

	err = f.auth.ResetPassword(ctx, n.Token, "Another1!")
	assert.Equal(t, KindInvalidToken, KindOf(err))
}

func TestPasswordOverByteLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	long := "Aa1!" + strings.Repeat("ñ", 35)
	require.Greater(t, len(long), utils.MaxPasswordBytes)

	_, err := f.auth.Register(ctx, RegisterInput{Email: "long@x.com", Password: long, Username: "long"})
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = f.auth.Login(ctx, "long@x.com", long)
	assert.Equal(t, KindInvalidCredentials, KindOf(err))

	id := f.register(t, "a@x.com", "Passw0rd!", "userA").User.ID
	assert.Equal(t, KindValidation, KindOf(f.users.ChangePassword(ctx, id, "Passw0rd!", long)))

	require.NoError(t, f.auth.RequestPasswordReset(ctx, "a@x.com"))
	f.notifier.Wait()
	n, ok := f.box.last(notify.KindPasswordReset)
	require.True(t, ok)
	assert.Equal(t, KindValidation, KindOf(f.auth.ResetPassword(ctx, n.Token, long)))
	require.NoError(t, f.auth.ResetPassword(ctx, n.Token, "NewPass1!"), "token survives a rejected password")
}

func TestResetTokenSuperseded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "Passw0rd!", "userA")

	require.NoError(t, f.auth.RequestPasswordReset(ctx, "a@x.com"))
	f.notifier.Wait()
	first, _ := f.box.last(notify.KindPasswordReset)
	require.NoError(t, f.auth.RequestPasswordReset(ctx, "a@x.com"))
	f.notifier.Wait()
	second, _ := f.box.last(notify.KindPasswordReset)
	require.NotEqual(t, first.Token, second.Token)

	assert.Equal(t, KindInvalidToken, KindOf(f.auth.ResetPassword(ctx, first.Token, "NewPass1!")))
	assert.NoError(t, f.auth.ResetPassword(ctx, second.Token, "NewPass1!"))
}

func TestResetTokenExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()
	f.mem.SetClock(func() time.Time { return now })
	f.register(t, "a@x.com", "Passw0rd!", "userA")

	require.NoError(t, f.auth.RequestPasswordReset(ctx, "a@x.com"))
	f.notifier.Wait()
	n, _ := f.box.last(notify.KindPasswordReset)

	now = now.Add(time.Hour + time.Second)
	assert.Equal(t, KindInvalidToken, KindOf(f.auth.ResetPassword(ctx, n.Token, "NewPass1!")))
}

// gatedLedger holds every Validate until all expected callers have validated,
// so they all see the token before any of them consumes it.
type gatedLedger struct {
	repository.TokenLedger
	gate *sync.WaitGroup
}

func (g gatedLedger) Validate(ctx context.Context, raw string, typ model.TokenType) (model.TokenOwner, error) {
	o, err := g.TokenLedger.Validate(ctx, raw, typ)
	g.gate.Done()
	g.gate.Wait()
	return o, err
}

type gatedRepos struct {
	*repository.Memory
	gate *sync.WaitGroup
}

func (r gatedRepos) Tokens(db database.DBTX) repository.TokenLedger {
	return gatedLedger{TokenLedger: r.Memory.Tokens(db), gate: r.gate}
}

func TestResetTokenConcurrentUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "Passw0rd!", "userA")
	require.NoError(t, f.auth.RequestPasswordReset(ctx, "a@x.com"))
	f.notifier.Wait()
	n, ok := f.box.last(notify.KindPasswordReset)
	require.True(t, ok)

	gate := &sync.WaitGroup{}
	gate.Add(2)
	hasher := utils.NewPasswordHasher(bcrypt.MinCost)
	auth := NewAuthService(f.mem, gatedRepos{Memory: f.mem, gate: gate}, &hasher, f.tokens, f.notifier,
		logging.Nop{}, AuthOptions{ResetTTL: time.Hour})

	passwords := []string{"NewPass1!", "NewPass2!"}
	errs := make([]error, len(passwords))
	var wg sync.WaitGroup
	for i := range passwords {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = auth.ResetPassword(ctx, n.Token, passwords[i])
		}(i)
	}
	wg.Wait()
	f.notifier.Wait()

	var winner, loser string
	for i, err := range errs {
		if err == nil {
			require.Empty(t, winner, "token accepted twice")
			winner = passwords[i]
			continue
		}
		assert.Equal(t, KindInvalidToken, KindOf(err))
		loser = passwords[i]
	}
	require.NotEmpty(t, winner)
	require.NotEmpty(t, loser)

	_, err := f.auth.Login(ctx, "a@x.com", winner)
	assert.NoError(t, err)
	_, err = f.auth.Login(ctx, "a@x.com", loser)
	assert.Equal(t, KindInvalidCredentials, KindOf(err))
}

func TestVerifyEmailTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "Passw0rd!", "userA")
	f.notifier.Wait()
	n, ok := f.box.last(notify.KindEmailVerification)
	require.True(t, ok)

	_, err := f.auth.VerifyEmail(ctx, n.Token)
	require.NoError(t, err)
	_, err = f.auth.VerifyEmail(ctx, n.Token)
	assert.Equal(t, KindInvalidToken, KindOf(err))
}

func TestResetPasswordWrongTokenType(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.com", "Passw0rd!", "userA")
	f.notifier.Wait()
	n, _ := f.box.last(notify.KindEmailVerification)

	err := f.auth.ResetPassword(context.Background(), n.Token, "NewPass1!")
	assert.Equal(t, KindInvalidToken, KindOf(err))
	assert.Equal(t, KindInvalidToken, KindOf(f.auth.ResetPassword(context.Background(), "", "NewPass1!")))
}

func TestResendVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "a@x.com", "Passw0rd!", "userA")
	f.notifier.Wait()
	old, _ := f.box.last(notify.KindEmailVerification)

	require.NoError(t, f.auth.ResendVerification(ctx, reg.User.ID))
	f.notifier.Wait()
	fresh, _ := f.box.last(notify.KindEmailVerification)
	require.NotEqual(t, old.Token, fresh.Token)

	_, err := f.auth.VerifyEmail(ctx, old.Token)
	assert.Equal(t, KindInvalidToken, KindOf(err))
	_, err = f.auth.VerifyEmail(ctx, fresh.Token)
	require.NoError(t, err)

	assert.Equal(t, KindAlreadyVerified, KindOf(f.auth.ResendVerification(ctx, reg.User.ID)))
}

func TestAvailabilityChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "Passw0rd!", "userA")

	ok, err := f.auth.EmailAvailable(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = f.auth.EmailAvailable(ctx, "b@x.com")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.auth.UsernameAvailable(ctx, "userA")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPurgeExpiredTokens(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.mem.SetClock(func() time.Time { return now })
	f.auth.now = func() time.Time { return now }
	f.register(t, "a@x.com", "Passw0rd!", "userA")

	n, err := f.auth.PurgeExpiredTokens(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(25 * time.Hour)
	n, err = f.auth.PurgeExpiredTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindNotFound, KindOf(newError(KindNotFound, "x")))

	e := internal(errors.New("db down"))
	assert.ErrorContains(t, e, "db down")
	assert.Equal(t, msgInternal, e.Message)
}
