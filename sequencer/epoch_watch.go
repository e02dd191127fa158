package sequencer

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.etcd.io/etcd/clientv3"
	"go.etcd.io/etcd/mvcc/mvccpb"
)

// EpochWatcher drives a Sequencer's epoch from an external coordination
// service, the way the source's layout system advances the sequencer's
// epoch whenever cluster membership or leadership changes (spec §3: "An
// epoch increase invalidates outstanding tokens"). This reference watcher
// uses etcd as that coordination service, matching the teacher's own use
// of etcd (via clientv3) for broker/consumer membership watches.
type EpochWatcher struct {
	seq *Sequencer
	cli *clientv3.Client
	key string
}

// NewEpochWatcher returns a watcher that bumps seq's epoch on every change
// to key. The caller owns cli's lifecycle (Close it after Run returns).
func NewEpochWatcher(seq *Sequencer, cli *clientv3.Client, key string) *EpochWatcher {
	return &EpochWatcher{seq: seq, cli: cli, key: key}
}

// Run watches the layout key until ctx is cancelled or the watch channel
// closes. Every PUT or DELETE observed bumps the sequencer's epoch,
// regardless of the value, since the presence of a change -- not its
// content -- is what must invalidate outstanding tokens.
func (w *EpochWatcher) Run(ctx context.Context) {
	var watchCh = w.cli.Watch(ctx, w.key)
	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-watchCh:
			if !ok {
				return
			}
			if resp.Err() != nil {
				log.WithError(resp.Err()).Warn("sequencer: epoch watch error")
				continue
			}
			for _, ev := range resp.Events {
				if ev.Type == mvccpb.PUT || ev.Type == mvccpb.DELETE {
					w.seq.BumpEpoch()
				}
			}
		}
	}
}
