package accessctl

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/cargoflow/accessctl/logger"
)

// ============================================================================
// CONFIG BUNDLE DISTRIBUTION
// ============================================================================

// ConfigBundle is a signed snapshot of the full access configuration in the
// compact binary format. Receivers verify the signature before applying.
type ConfigBundle struct {
	Data        []byte         `json:"data"`
	Signature   []byte         `json:"signature"`
	GeneratedAt time.Time      `json:"generated_at"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// Decode returns the bundled configuration.
func (b *ConfigBundle) Decode() (*Config, error) {
	return NewConfigLoader().LoadBinary(b.Data)
}

// VerifyBundle reports whether the bundle's signature matches its payload.
func VerifyBundle(pub ed25519.PublicKey, b *ConfigBundle) bool {
	if b == nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, b.Data, b.Signature)
}

// BundleSubscriber receives signed config snapshots.
type BundleSubscriber interface {
	OnBundle(ctx context.Context, pub ed25519.PublicKey, bundle *ConfigBundle) error
}

// BundleSubscriberFunc adapts a function to the BundleSubscriber interface.
type BundleSubscriberFunc func(ctx context.Context, pub ed25519.PublicKey, bundle *ConfigBundle) error

func (f BundleSubscriberFunc) OnBundle(ctx context.Context, pub ed25519.PublicKey, bundle *ConfigBundle) error {
	return f(ctx, pub, bundle)
}

// BundleDistributor snapshots the resource, role, and policy stores into a
// signed binary bundle and pushes it to subscribers whenever a change is
// notified. Peer instances apply received bundles to their own manager via
// ConfigBundle.Decode and ApplyConfig. The signing key rotates on a timer.
type BundleDistributor struct {
	resources        ResourceStore
	roles            RoleStore
	policies         PolicyStore
	pub              ed25519.PublicKey
	priv             ed25519.PrivateKey
	rotationInterval time.Duration
	notifyCh         chan struct{}
	stopCh           chan struct{}
	subscribers      []BundleSubscriber
	log              logger.Logger
	mu               sync.RWMutex
	started          bool
	wg               sync.WaitGroup
}

type BundleDistributorOption func(*BundleDistributor)

// WithBundleSigningKey installs a fixed signing key instead of a generated one.
func WithBundleSigningKey(priv ed25519.PrivateKey) BundleDistributorOption {
	return func(d *BundleDistributor) {
		if len(priv) == ed25519.PrivateKeySize {
			d.priv = append(ed25519.PrivateKey{}, priv...)
			d.pub = d.priv.Public().(ed25519.PublicKey)
		}
	}
}

func WithBundleRotationInterval(interval time.Duration) BundleDistributorOption {
	return func(d *BundleDistributor) {
		if interval > 0 {
			d.rotationInterval = interval
		}
	}
}

func WithBundleLogger(l logger.Logger) BundleDistributorOption {
	return func(d *BundleDistributor) {
		if l != nil {
			d.log = l
		}
	}
}

func NewBundleDistributor(resources ResourceStore, roles RoleStore, policies PolicyStore, opts ...BundleDistributorOption) (*BundleDistributor, error) {
	if resources == nil || roles == nil || policies == nil {
		return nil, fmt.Errorf("accessctl: bundle distributor needs all three stores")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	dist := &BundleDistributor{
		resources:        resources,
		roles:            roles,
		policies:         policies,
		pub:              pub,
		priv:             priv,
		rotationInterval: 24 * time.Hour,
		notifyCh:         make(chan struct{}, 1),
		stopCh:           make(chan struct{}),
		log:              logger.NewPhusluLogger(),
	}
	for _, opt := range opts {
		opt(dist)
	}
	return dist, nil
}

// Start launches the distribution loop. Calling Start twice is a no-op.
func (d *BundleDistributor) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.rotationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-d.notifyCh:
				if err := d.distribute(ctx); err != nil {
					d.log.Error("bundle distribution failed", "error", err.Error())
				}
			case <-ticker.C:
				if err := d.RotateSigningKey(); err != nil {
					d.log.Error("bundle key rotation failed", "error", err.Error())
				}
			}
		}
	}()
}

// Stop shuts the loop down, waiting until ctx expires for it to drain.
func (d *BundleDistributor) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	d.mu.Unlock()

	close(d.stopCh)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Notify schedules a distribution. Signals coalesce; a burst of mutations
// produces one bundle.
func (d *BundleDistributor) Notify() {
	select {
	case d.notifyCh <- struct{}{}:
	default:
	}
}

func (d *BundleDistributor) RegisterSubscriber(sub BundleSubscriber) {
	if sub == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, sub)
}

// RotateSigningKey generates a fresh key pair. Bundles signed afterwards
// verify only against the new public key.
func (d *BundleDistributor) RotateSigningKey() error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.priv = priv
	d.pub = pub
	d.mu.Unlock()
	return nil
}

func (d *BundleDistributor) CurrentPublicKey() ed25519.PublicKey {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append(ed25519.PublicKey(nil), d.pub...)
}

func (d *BundleDistributor) distribute(ctx context.Context) error {
	cfg, err := d.snapshot(ctx)
	if err != nil {
		return err
	}
	data, err := EncodeBinaryConfig(cfg)
	if err != nil {
		return err
	}

	d.mu.RLock()
	sig := ed25519.Sign(d.priv, data)
	pub := append(ed25519.PublicKey(nil), d.pub...)
	subs := append([]BundleSubscriber(nil), d.subscribers...)
	d.mu.RUnlock()

	bundle := &ConfigBundle{
		Data:        data,
		Signature:   sig,
		GeneratedAt: time.Now().UTC(),
		Meta: map[string]any{
			"signing_key": base64.StdEncoding.EncodeToString(pub),
		},
	}
	for _, sub := range subs {
		if err := sub.OnBundle(ctx, pub, bundle); err != nil {
			d.log.Error("bundle subscriber failed", "error", err.Error())
		}
	}
	return nil
}

func (d *BundleDistributor) snapshot(ctx context.Context) (*Config, error) {
	resources, err := d.resources.GetResources(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := d.roles.GetRoles(ctx)
	if err != nil {
		return nil, err
	}
	policies, err := d.policies.GetPolicies(ctx)
	if err != nil {
		return nil, err
	}
	return &Config{
		Version:   1,
		Resources: resources,
		Roles:     roles,
		Policies:  policies,
	}, nil
}
