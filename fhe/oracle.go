// Copyright 2025 Umbra Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fhe

import (
	"crypto/hmac"
	"errors"
	"io"
	"log/slog"
	"sync"
)

const (
	// oracleQueueSize bounds the number of decryption requests waiting for
	// delivery.
	oracleQueueSize = 256
)

var (
	ErrOracleStopped = errors.New("oracle stopped")
	ErrNilCallback   = errors.New("nil result callback")
)

// RequestID identifies a single decryption request. IDs are monotonically
// increasing from 1.
type RequestID uint64

// Result is an asynchronous decryption outcome. Callers MUST verify Proof
// via Oracle.VerifyResult before trusting Plaintext; a result with an
// invalid proof is discarded, never applied.
type Result struct {
	RequestID RequestID
	Plaintext uint64
	Proof     []byte
}

// ResultFunc receives decryption results. It is invoked from the oracle's
// delivery goroutine, never from the requesting goroutine.
type ResultFunc func(Result)

type pendingRequest struct {
	id      RequestID
	ct      Ciphertext
	deliver ResultFunc
}

// Oracle is the trusted decryption service. Requests resolve asynchronously
// on a delivery goroutine; each result carries an HMAC authenticity proof
// over (requestID, plaintext).
//
// Gating comparisons on adversarial paths (withdrawals, balance locks, order
// matching) use CompareNow, the attested synchronous path: the result proof
// is still produced and checked, but the round-trip is collapsed. The
// genuinely asynchronous path is reserved for settlement-style decryptions
// where the caller suspends and resumes on callback.
type Oracle struct {
	scheme  *Scheme
	logger  *slog.Logger
	queue   chan pendingRequest
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastID  RequestID
	stopped bool
}

// OracleConfig configures an Oracle.
type OracleConfig struct {
	Scheme *Scheme
	Logger *slog.Logger
}

// NewOracle creates an Oracle bound to the given scheme and starts its
// delivery goroutine.
func NewOracle(cfg OracleConfig) *Oracle {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	o := &Oracle{
		scheme: cfg.Scheme,
		logger: cfg.Logger,
		queue:  make(chan pendingRequest, oracleQueueSize),
		stopCh: make(chan struct{}),
	}
	o.wg.Add(1)
	go o.deliveryWorker()
	return o
}

func (o *Oracle) deliveryWorker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.stopCh:
			return
		case req, ok := <-o.queue:
			if !ok {
				return
			}
			o.resolve(req)
		}
	}
}

func (o *Oracle) resolve(req pendingRequest) {
	v, err := o.scheme.lookup(req.ct)
	if err != nil {
		o.logger.Error(
			"decryption request references unknown ciphertext",
			"component", "fhe",
			"request_id", uint64(req.id),
			"error", err,
		)
		return
	}
	res := Result{
		RequestID: req.id,
		Plaintext: v,
		Proof:     proofMAC(o.scheme.key, uint64(req.id), v),
	}
	req.deliver(res)
}

// RequestDecryption submits a ciphertext for asynchronous decryption. The
// result is delivered to the supplied callback from the oracle's delivery
// goroutine.
func (o *Oracle) RequestDecryption(
	ct Ciphertext,
	deliver ResultFunc,
) (RequestID, error) {
	if deliver == nil {
		return 0, ErrNilCallback
	}
	if _, err := o.scheme.lookup(ct); err != nil {
		return 0, err
	}
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return 0, ErrOracleStopped
	}
	o.lastID++
	id := o.lastID
	o.mu.Unlock()
	select {
	case o.queue <- pendingRequest{id: id, ct: ct, deliver: deliver}:
	case <-o.stopCh:
		return 0, ErrOracleStopped
	}
	return id, nil
}

// VerifyResult checks the authenticity proof on a decryption result.
func (o *Oracle) VerifyResult(res Result) bool {
	expected := proofMAC(o.scheme.key, uint64(res.RequestID), res.Plaintext)
	return hmac.Equal(expected, res.Proof)
}

// CompareNow resolves an encrypted boolean synchronously with an attested
// proof. The proof is verified before the boolean is returned, so a
// tampered scheme state surfaces as an error rather than a silent
// authorization.
func (o *Oracle) CompareNow(ct Ciphertext) (bool, error) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return false, ErrOracleStopped
	}
	o.lastID++
	id := o.lastID
	o.mu.Unlock()
	v, err := o.scheme.lookup(ct)
	if err != nil {
		return false, err
	}
	if v > 1 {
		return false, ErrNotBoolean
	}
	res := Result{
		RequestID: id,
		Plaintext: v,
		Proof:     proofMAC(o.scheme.key, uint64(id), v),
	}
	if !o.VerifyResult(res) {
		return false, errors.New("attested comparison proof invalid")
	}
	return v == 1, nil
}

// Stop shuts down the delivery goroutine. Pending requests that have not
// been delivered are dropped.
func (o *Oracle) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	o.mu.Unlock()
	close(o.stopCh)
	o.wg.Wait()
}
