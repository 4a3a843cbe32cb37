package jobs

import (
	"sync"
)

// ReceiverRegistry tracks the active channels listening on each job's
// output.
type ReceiverRegistry interface {
	AddReceiver(jobID string, ch chan string)
	RemoveReceiver(jobID string, ch chan string)
	Broadcast(msg OutputLine)
	CloseAndRemoveReceiversForJob(jobID string)
	CleanUp()
}

type receiverRegistry struct {
	receivers map[string]map[chan string]bool
	lock      sync.RWMutex
}

func NewReceiverRegistry() ReceiverRegistry {
	return &receiverRegistry{
		receivers: map[string]map[chan string]bool{},
	}
}

func (r *receiverRegistry) AddReceiver(jobID string, ch chan string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.receivers[jobID] == nil {
		r.receivers[jobID] = map[chan string]bool{}
	}
	r.receivers[jobID][ch] = true
}

func (r *receiverRegistry) RemoveReceiver(jobID string, ch chan string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.receivers[jobID], ch)
}

func (r *receiverRegistry) Broadcast(msg OutputLine) {
	r.lock.Lock()
	defer r.lock.Unlock()

	for ch := range r.receivers[msg.JobID] {
		select {
		case ch <- msg.Line:
		default:
			// a receiver that stopped draining gets dropped so it cannot
			// stall the whole broadcast.
			delete(r.receivers[msg.JobID], ch)
			close(ch)
		}
	}
}

func (r *receiverRegistry) CloseAndRemoveReceiversForJob(jobID string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	for ch := range r.receivers[jobID] {
		close(ch)
	}
	delete(r.receivers, jobID)
}

func (r *receiverRegistry) CleanUp() {
	r.lock.Lock()
	jobIDs := make([]string, 0, len(r.receivers))
	for jobID := range r.receivers {
		jobIDs = append(jobIDs, jobID)
	}
	r.lock.Unlock()

	for _, jobID := range jobIDs {
		r.CloseAndRemoveReceiversForJob(jobID)
	}
}
