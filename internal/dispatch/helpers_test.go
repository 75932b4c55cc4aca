package dispatch

import (
	"sync"

	"ride-dispatch/internal/general/contracts"
)

type delivery struct {
	handle SessionHandle
	msg    contracts.WSOutbound
}

// recordingDeliverer accepts every message except for handles marked full.
type recordingDeliverer struct {
	mu   sync.Mutex
	got  []delivery
	full map[SessionHandle]bool
}

func newRecordingDeliverer() *recordingDeliverer {
	return &recordingDeliverer{full: make(map[SessionHandle]bool)}
}

func (d *recordingDeliverer) Deliver(handle SessionHandle, msg contracts.WSOutbound) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.full[handle] {
		return false
	}
	d.got = append(d.got, delivery{handle: handle, msg: msg})
	return true
}

func (d *recordingDeliverer) markFull(h SessionHandle) {
	d.mu.Lock()
	d.full[h] = true
	d.mu.Unlock()
}

func (d *recordingDeliverer) handles(msgType string) []SessionHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []SessionHandle
	for _, x := range d.got {
		if x.msg.Type == msgType {
			out = append(out, x.handle)
		}
	}
	return out
}

func (d *recordingDeliverer) messages(h SessionHandle) []contracts.WSOutbound {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []contracts.WSOutbound
	for _, x := range d.got {
		if x.handle == h {
			out = append(out, x.msg)
		}
	}
	return out
}

func (d *recordingDeliverer) reset() {
	d.mu.Lock()
	d.got = nil
	d.mu.Unlock()
}
