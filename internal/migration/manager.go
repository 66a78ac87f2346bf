// Package migration moves accounts from the Kin Core chain to the Kin SDK
// chain. A Manager resolves the authoritative version, burns the legacy
// account, asks the migration service to recreate the balance and copies
// the keystore entry into the Kin SDK store.
package migration

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/wallet"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// State is the position of a Manager in the migration sequence.
type State int

// Manager states.
const (
	StateIdle State = iota
	StateVersionCheck
	StateBurning
	StateMigrating
	StateMovingKeystore
	StateReady
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateVersionCheck:
		return "versionCheckPending"
	case StateBurning:
		return "burning"
	case StateMigrating:
		return "migrating"
	case StateMovingKeystore:
		return "movingKeystore"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ReadyReason tells why an attempt ended ready.
type ReadyReason int

// Ready reasons.
const (
	// ReasonAPICheck means the version resolver chose Kin Core.
	ReasonAPICheck ReadyReason = iota
	// ReasonAlreadyMigrated means the address was already in the Kin SDK store.
	ReasonAlreadyMigrated
	// ReasonNoAccountToMigrate means the Kin Core store is empty.
	ReasonNoAccountToMigrate
	// ReasonMigrated means this attempt completed the migration.
	ReasonMigrated
)

// String returns the reason name.
func (r ReadyReason) String() string {
	switch r {
	case ReasonAPICheck:
		return "apiCheck"
	case ReasonAlreadyMigrated:
		return "alreadyMigrated"
	case ReasonNoAccountToMigrate:
		return "noAccountToMigrate"
	case ReasonMigrated:
		return "migrated"
	default:
		return "unknown"
	}
}

// Outcome is the ready result of an attempt.
type Outcome struct {
	AttemptID string
	Version   chain.Version
	Client    *wallet.Client
	Reason    ReadyReason
	// Burn and Service are set when the attempt went through those steps.
	Burn    *chain.BurnResult
	Service *ServiceResult
}

// Delegate is the caller side of an attempt. NeedsVersion supplies the
// authoritative version; exactly one of Ready or Error ends each attempt.
type Delegate interface {
	NeedsVersion(ctx context.Context) (chain.Version, error)
	DidStart()
	Ready(outcome Outcome)
	Error(err error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithDelegate sets the delegate.
func WithDelegate(d Delegate) Option {
	return func(m *Manager) { m.delegate = d }
}

// WithObserver sets the step telemetry observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l.With().Str("component", "migration").Logger() }
}

// WithTransferPassphrase sets the passphrase the account is sealed under
// while it moves between stores.
func WithTransferPassphrase(p string) Option {
	return func(m *Manager) { m.transferPassphrase = p }
}

// Manager runs migration attempts, one at a time.
type Manager struct {
	legacy  *wallet.Client
	current *wallet.Client
	service Migrator

	delegate           Delegate
	observer           Observer
	logger             zerolog.Logger
	transferPassphrase string

	mu      sync.Mutex
	started bool
	address string
	state   State
}

// NewManager returns a manager migrating from legacy (Kin Core) to current
// (Kin SDK) through service.
func NewManager(legacy, current *wallet.Client, service Migrator, opts ...Option) (*Manager, error) {
	if legacy == nil || current == nil || service == nil {
		return nil, kinerr.Wrap(kinerr.ErrUnexpectedCondition, "manager needs both wallet clients and a migration service")
	}
	if legacy.Version() != chain.KinCore || current.Version() != chain.KinSDK {
		return nil, kinerr.Wrap(kinerr.ErrUnexpectedCondition, "cannot migrate from %s to %s", legacy.Version(), current.Version())
	}
	m := &Manager{
		legacy:   legacy,
		current:  current,
		service:  service,
		observer: nopObserver{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// SetDelegate replaces the delegate between attempts.
func (m *Manager) SetDelegate(d Delegate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delegate = d
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// InProgress reports whether an attempt is running.
func (m *Manager) InProgress() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Client returns the wallet client of v.
func (m *Manager) Client(v chain.Version) *wallet.Client {
	if v == chain.KinCore {
		return m.legacy
	}
	return m.current
}

type attempt struct {
	id       string
	address  string
	delegate Delegate
	legacy   chain.Account
	outcome  Outcome
}

// Start begins an attempt in the background; the delegate receives the
// result. It returns ErrMissingDelegate without a delegate and
// ErrMigrationInProgress while another attempt runs.
func (m *Manager) Start(ctx context.Context, address string) error {
	a, err := m.begin(address)
	if err != nil {
		return err
	}
	go func() { _, _ = m.run(ctx, a) }()
	return nil
}

// Run performs an attempt and returns its result. The delegate is
// notified as with Start.
func (m *Manager) Run(ctx context.Context, address string) (*Outcome, error) {
	a, err := m.begin(address)
	if err != nil {
		return nil, err
	}
	return m.run(ctx, a)
}

func (m *Manager) begin(address string) (*attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.delegate == nil {
		return nil, kinerr.ErrMissingDelegate
	}
	if m.started {
		return nil, kinerr.WithDetails(kinerr.ErrMigrationInProgress, map[string]string{"address": m.address})
	}
	m.started = true
	m.address = address
	m.state = StateIdle
	return &attempt{id: uuid.NewString(), address: address, delegate: m.delegate}, nil
}

func (m *Manager) run(ctx context.Context, a *attempt) (*Outcome, error) {
	logger := m.logger.With().Str("attempt", a.id).Str("address", a.address).Logger()
	logger.Info().Msg("migration started")
	m.emit(a, StepAttempt, EventStarted, "", nil)
	a.delegate.DidStart()

	state := StateIdle
	var err error
	for state != StateReady && state != StateFailed {
		m.setState(state)
		prev := state
		state, err = m.step(ctx, state, a)
		logger.Debug().Str("from", prev.String()).Str("to", state.String()).Msg("transition")
	}

	m.mu.Lock()
	m.started = false
	m.address = ""
	m.state = state
	m.mu.Unlock()

	if state == StateFailed {
		logger.Warn().Err(err).Msg("migration failed")
		m.emit(a, StepAttempt, EventFailed, kinerr.Code(err), err)
		a.delegate.Error(err)
		return nil, err
	}

	a.outcome.AttemptID = a.id
	a.outcome.Client = m.Client(a.outcome.Version)
	logger.Info().
		Str("version", a.outcome.Version.String()).
		Str("reason", a.outcome.Reason.String()).
		Msg("migration ready")
	m.emit(a, StepAttempt, EventSucceeded, a.outcome.Reason.String(), nil)
	out := a.outcome
	a.delegate.Ready(out)
	return &out, nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// step performs the work of state s and returns the next state.
func (m *Manager) step(ctx context.Context, s State, a *attempt) (State, error) {
	switch s {
	case StateIdle:
		return m.precheck(a)
	case StateVersionCheck:
		return m.checkVersion(ctx, a)
	case StateBurning:
		return m.burn(ctx, a)
	case StateMigrating:
		return m.requestMigration(ctx, a)
	case StateMovingKeystore:
		return m.moveKeystore(a)
	default:
		return StateFailed, kinerr.Wrap(kinerr.ErrUnexpectedCondition, "no transition from %s", s)
	}
}

func (m *Manager) ready(a *attempt, v chain.Version, reason ReadyReason) (State, error) {
	a.outcome.Version = v
	a.outcome.Reason = reason
	return StateReady, nil
}

func (m *Manager) precheck(a *attempt) (State, error) {
	if a.address == "" {
		return StateVersionCheck, nil
	}
	migrated, err := m.current.Contains(a.address)
	if err != nil {
		return StateFailed, err
	}
	if migrated {
		return m.ready(a, chain.KinSDK, ReasonAlreadyMigrated)
	}
	return StateVersionCheck, nil
}

func (m *Manager) checkVersion(ctx context.Context, a *attempt) (State, error) {
	m.emit(a, StepVersionCheck, EventStarted, "", nil)
	v, err := a.delegate.NeedsVersion(ctx)
	if err != nil {
		m.emit(a, StepVersionCheck, EventFailed, "", err)
		return StateFailed, err
	}
	if !v.IsValid() {
		err = kinerr.Wrap(kinerr.ErrUnexpectedCondition, "resolver returned %s", v)
		m.emit(a, StepVersionCheck, EventFailed, "", err)
		return StateFailed, err
	}
	m.emit(a, StepVersionCheck, EventSucceeded, v.String(), nil)

	if v.IsLegacy() {
		return m.ready(a, chain.KinCore, ReasonAPICheck)
	}

	n, err := m.legacy.Count()
	if err != nil {
		return StateFailed, err
	}
	if n == 0 {
		return m.ready(a, chain.KinSDK, ReasonNoAccountToMigrate)
	}

	acct, _, err := m.legacy.Find(a.address)
	if err != nil {
		return StateFailed, err
	}
	if acct == nil {
		return StateFailed, kinerr.WithDetails(kinerr.ErrInvalidPublicAddress, map[string]string{"address": a.address})
	}
	a.legacy = acct
	return StateBurning, nil
}

func (m *Manager) burn(ctx context.Context, a *attempt) (State, error) {
	burner, ok := a.legacy.(chain.Burner)
	if !ok {
		return StateFailed, kinerr.Wrap(kinerr.ErrUnexpectedCondition, "%s account cannot burn", a.legacy.Version())
	}

	m.emit(a, StepBurn, EventStarted, "", nil)
	res, err := burner.Burn(ctx)
	if err != nil {
		m.emit(a, StepBurn, EventFailed, "", err)
		return StateFailed, err
	}
	a.outcome.Burn = res
	m.emit(a, StepBurn, EventSucceeded, res.Reason.String(), nil)
	return StateMigrating, nil
}

func (m *Manager) requestMigration(ctx context.Context, a *attempt) (State, error) {
	m.emit(a, StepRequest, EventStarted, "", nil)
	res, err := m.service.Migrate(ctx, a.address)
	if err != nil {
		m.emit(a, StepRequest, EventFailed, "", err)
		return StateFailed, err
	}
	a.outcome.Service = &res
	m.emit(a, StepRequest, EventSucceeded, res.String(), nil)
	return StateMovingKeystore, nil
}

// moveKeystore copies the legacy record into the Kin SDK store unless an
// earlier attempt already did.
func (m *Manager) moveKeystore(a *attempt) (State, error) {
	m.emit(a, StepKeystore, EventStarted, "", nil)
	err := m.copyAccount(a)
	if err != nil {
		m.emit(a, StepKeystore, EventFailed, "", err)
		return StateFailed, err
	}
	m.emit(a, StepKeystore, EventSucceeded, "", nil)
	return m.ready(a, chain.KinSDK, ReasonMigrated)
}

func (m *Manager) copyAccount(a *attempt) error {
	present, err := m.current.Contains(a.address)
	if err != nil || present {
		return err
	}

	exported, err := a.legacy.Export(m.transferPassphrase)
	if err != nil {
		return err
	}
	// The exported record carries Extra, so the import writes it too.
	_, err = m.current.ImportAccount(exported, m.transferPassphrase)
	return err
}

func (m *Manager) emit(a *attempt, step Step, kind EventKind, detail string, err error) {
	m.observer.Observe(Event{
		AttemptID: a.id,
		Step:      step,
		Kind:      kind,
		Address:   a.address,
		Version:   a.outcome.Version,
		Detail:    detail,
		Err:       err,
	})
}
