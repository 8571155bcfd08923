// Package dispatch runs one operation across every connection in the pool
// under a dispatch strategy: fanout executes hosts concurrently with a
// join-all barrier, rolling executes them strictly in pool order. Either
// way, per-host outcomes are collected into a result set instead of letting
// a failing host's error escape a goroutine unobserved.
package dispatch

import (
	"fmt"
	"sync"

	"github.com/fabworks/fab/internal/env"
	"github.com/fabworks/fab/internal/errors"
	"github.com/fabworks/fab/internal/pool"
)

// Op is an operation applied once per (host, connection) pair. It receives
// the host's private environment snapshot with fab_host bound.
type Op func(host string, conn *pool.Connection, henv *env.Env) error

// HostResult is the outcome of one host's invocation.
type HostResult struct {
	Host string
	Err  error
}

// Results holds per-host outcomes in pool order.
type Results []HostResult

// Failed returns the results whose invocation returned an error.
func (r Results) Failed() Results {
	var failed Results
	for _, res := range r {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err returns nil when every host succeeded, otherwise an error summarizing
// the failed hosts that carries the first failure as its cause.
func (r Results) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	hosts := make([]string, len(failed))
	for i, res := range failed {
		hosts[i] = res.Host
	}
	return errors.WrapWithCode(failed[0].Err, errors.ErrExec,
		fmt.Sprintf("Operation failed on %d of %d host(s): %v", len(failed), len(r), hosts),
		"")
}

// Dispatch applies op to every connection under the strategy configured in
// fab_mode. Each invocation receives its own environment snapshot, so
// host-level units never share mutable state. An unrecognized mode aborts
// before any connection is touched.
func Dispatch(e *env.Env, conns []*pool.Connection, op Op) (Results, error) {
	mode := e.GetString(env.KeyMode)
	switch mode {
	case env.ModeFanout:
		return fanout(e, conns, op), nil
	case env.ModeRolling:
		return rolling(e, conns, op), nil
	default:
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Unsupported fab_mode: %s", mode),
			"Supported modes are: fanout, rolling")
	}
}

// fanout runs op concurrently on every host and blocks until all units
// complete. Ordering between hosts is unspecified; output lines from
// different hosts may interleave.
func fanout(e *env.Env, conns []*pool.Connection, op Op) Results {
	results := make(Results, len(conns))

	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn *pool.Connection) {
			defer wg.Done()
			henv := e.ForHost(conn.Host)
			// Each goroutine owns exactly its slot.
			results[i] = HostResult{Host: conn.Host, Err: op(conn.Host, conn, henv)}
		}(i, conn)
	}
	wg.Wait()

	return results
}

// rolling runs op on each host strictly in pool order, each invocation
// completing fully before the next begins. A failure on one host is
// recorded but does not skip the hosts after it.
func rolling(e *env.Env, conns []*pool.Connection, op Op) Results {
	results := make(Results, 0, len(conns))
	for _, conn := range conns {
		henv := e.ForHost(conn.Host)
		results = append(results, HostResult{Host: conn.Host, Err: op(conn.Host, conn, henv)})
	}
	return results
}
