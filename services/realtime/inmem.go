package realtimesvc

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/trezcool/drowsiness/core/drowsiness"
	"github.com/trezcool/drowsiness/core/hrv"
)

// Inmem is a process-local RealtimeStore for tests and single-node development.
type Inmem struct {
	cache *ttlcache.Cache[string, any]
	mu    sync.Mutex // serializes read-modify-write sequences
}

var _ drowsiness.RealtimeStore = (*Inmem)(nil)

func NewInmem(ttl time.Duration) *Inmem {
	return &Inmem{
		cache: ttlcache.New(ttlcache.WithTTL[string, any](ttl)),
	}
}

// Start runs the expired-item cleaner until Stop is called.
func (m *Inmem) Start() { m.cache.Start() }
func (m *Inmem) Stop()  { m.cache.Stop() }

func (m *Inmem) ReserveAuthCode(_ context.Context, code, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := authCodeKey(code)
	if m.cache.Get(key, ttlcache.WithDisableTouchOnHit[string, any]()) != nil {
		return false, nil
	}
	m.cache.Set(key, sessionID, ttlcache.DefaultTTL)
	return true, nil
}

func (m *Inmem) ClaimAuthCode(_ context.Context, code string) (string, error) {
	item, ok := m.cache.GetAndDelete(authCodeKey(code))
	if !ok {
		return "", drowsiness.ErrAuthCodeNotFound
	}
	return item.Value().(string), nil
}

func (m *Inmem) ReleaseAuthCode(_ context.Context, code, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := authCodeKey(code)
	if item := m.cache.Get(key); item != nil && item.Value() == sessionID {
		m.cache.Delete(key)
	}
	return nil
}

func (m *Inmem) PublishPairing(_ context.Context, p drowsiness.Pairing) error {
	m.cache.Set(pairingKey(p.SessionID), p, ttlcache.DefaultTTL)
	return nil
}

func (m *Inmem) GetPairing(_ context.Context, sessionID string) (drowsiness.Pairing, error) {
	item := m.cache.Get(pairingKey(sessionID), ttlcache.WithDisableTouchOnHit[string, any]())
	if item == nil {
		return drowsiness.Pairing{}, drowsiness.ErrPairingNotFound
	}
	return item.Value().(drowsiness.Pairing), nil
}

func (m *Inmem) updatePairing(sessionID string, update func(p *drowsiness.Pairing)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairingKey(sessionID)
	item := m.cache.Get(key, ttlcache.WithDisableTouchOnHit[string, any]())
	if item == nil {
		return drowsiness.ErrPairingNotFound
	}
	p := item.Value().(drowsiness.Pairing)
	update(&p)
	m.cache.Set(key, p, ttlcache.DefaultTTL)
	return nil
}

func (m *Inmem) SetPaired(_ context.Context, sessionID string) error {
	return m.updatePairing(sessionID, func(p *drowsiness.Pairing) { p.Paired = true })
}

func (m *Inmem) SetStop(_ context.Context, sessionID string) error {
	return m.updatePairing(sessionID, func(p *drowsiness.Pairing) { p.Stop = true })
}

func (m *Inmem) AppendPPGSamples(_ context.Context, sessionID string, samples ...hrv.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ppgKey(sessionID)
	var all []hrv.Sample
	if item := m.cache.Get(key); item != nil {
		all = item.Value().([]hrv.Sample)
	}
	all = append(all[:len(all):len(all)], samples...)
	m.cache.Set(key, all, ttlcache.DefaultTTL)
	return nil
}

func (m *Inmem) ppg(sessionID string) []hrv.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.cache.Get(ppgKey(sessionID), ttlcache.WithDisableTouchOnHit[string, any]())
	if item == nil {
		return nil
	}
	return item.Value().([]hrv.Sample)
}

func (m *Inmem) CountPPGSamples(_ context.Context, sessionID string) (int64, error) {
	return int64(len(m.ppg(sessionID))), nil
}

func (m *Inmem) PPGSamples(_ context.Context, sessionID string) ([]hrv.Sample, error) {
	return append([]hrv.Sample(nil), m.ppg(sessionID)...), nil
}

func (m *Inmem) DeleteSession(_ context.Context, sessionID string) error {
	m.cache.Delete(pairingKey(sessionID))
	m.cache.Delete(ppgKey(sessionID))
	return nil
}
