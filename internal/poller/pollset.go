// Tencent is pleased to support the open source community by making linuxfd available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the linuxfd source code from Tencent,
// please note that linuxfd source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

package poller

import (
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/linuxfd/linuxfd/internal/registry"
	"github.com/linuxfd/linuxfd/log"
	"github.com/linuxfd/linuxfd/metrics"
)

const defaultBatch = 64

// generation numbers registrations process-wide. Raw kernel events carry
// the generation in their user-data slot so an event raised for a closed
// and recycled descriptor can never be attributed to the new registration.
var generation atomic.Uint64

// registration is the per (polling set, target) state.
type registration struct {
	fd    int
	gen   uint64
	ident identity
	kind  fdKind

	events uint32 // requested mask
	data   uint64 // user cookie

	readArmed   bool
	writeArmed  bool
	exceptArmed bool
	fired       bool // one-shot delivered, filters quiescent until MOD
	hupSeen     bool // write-side hang-up delivered at least once
}

// oneshot reports whether the registration disarms after one delivery.
func (r *registration) oneshot() bool {
	return r.events&OneShot != 0
}

// edge reports whether the registration uses edge-triggered arming.
func (r *registration) edge() bool {
	return r.events&ET != 0
}

type options struct {
	batch int
}

// Option configures a polling set.
type Option func(*options)

// WithBatch sets how many raw kernel events one wait harvests at a time.
func WithBatch(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batch = n
		}
	}
}

// PollSet is one emulated polling set: a kqueue plus the registration
// table that maps descriptors to requested event masks.
type PollSet struct {
	kq *Kqueue

	mu   sync.Mutex // guards regs; never held across a kevent call
	regs map[int]*registration

	batch int
}

// New creates a polling set backed by a fresh kqueue.
func New(opts ...Option) (*PollSet, error) {
	o := &options{batch: defaultBatch}
	for _, opt := range opts {
		opt(o)
	}
	kq, err := NewKqueue()
	if err != nil {
		return nil, err
	}
	return &PollSet{
		kq:    kq,
		regs:  make(map[int]*registration),
		batch: o.batch,
	}, nil
}

// FD returns the descriptor user code holds for this polling set.
func (ps *PollSet) FD() int {
	return ps.kq.FD()
}

// Kind implements registry.Context.
func (ps *PollSet) Kind() registry.Kind {
	return registry.KindPollSet
}

// Teardown implements registry.Context. Closing the kqueue drops every
// installed filter in the kernel.
func (ps *PollSet) Teardown() {
	ps.mu.Lock()
	ps.regs = make(map[int]*registration)
	ps.mu.Unlock()
	if err := ps.kq.Close(); err != nil {
		log.Errorf("pollset teardown: %v", err)
	}
}

// Ctl adds, modifies or removes the registration of fd. The error
// precedence follows Linux's observable behavior: a dead target beats a
// missing request only when the request would otherwise be required, and
// beats an unrecognised opcode only when a request was supplied.
func (ps *PollSet) Ctl(op Op, fd int, ev *Event) error {
	targetDead := fd < 0 || !fdOpen(fd)

	if ev == nil && (op == OpAdd || op == OpMod) {
		if targetDead {
			return unix.EBADF
		}
		return unix.EFAULT
	}
	if op != OpAdd && op != OpMod && op != OpDel {
		if targetDead && ev != nil {
			return unix.EBADF
		}
		return unix.EINVAL
	}
	if fd == ps.FD() {
		return unix.EINVAL
	}
	if targetDead {
		return unix.EBADF
	}

	var events uint32
	var data uint64
	if ev != nil {
		events = ev.Events
		data = ev.Data
		if events&^requestable != 0 {
			return unix.EINVAL
		}
	}

	switch op {
	case OpAdd:
		metrics.Add(metrics.PollCtlAdds, 1)
		return ps.add(fd, events, data)
	case OpMod:
		metrics.Add(metrics.PollCtlMods, 1)
		return ps.mod(fd, events, data)
	default:
		metrics.Add(metrics.PollCtlDels, 1)
		return ps.del(fd)
	}
}

func fdOpen(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}

func (ps *PollSet) add(fd int, events uint32, data uint64) error {
	kind, ident, err := classify(fd)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	if old, ok := ps.regs[fd]; ok {
		if sameFile(fd, old.kind, old.ident) {
			ps.mu.Unlock()
			return unix.EEXIST
		}
		// The old target was closed behind our back and the number
		// recycled; its filters died with it. Accept a fresh
		// registration.
		metrics.Add(metrics.PollStaleRegistrations, 1)
		delete(ps.regs, fd)
	}
	reg := &registration{
		fd:     fd,
		gen:    generation.Inc(),
		ident:  ident,
		kind:   kind,
		events: events,
		data:   data,
	}
	ps.regs[fd] = reg
	ps.mu.Unlock()

	if err := ps.arm(reg); err != nil {
		ps.mu.Lock()
		delete(ps.regs, fd)
		ps.mu.Unlock()
		return err
	}
	return nil
}

func (ps *PollSet) mod(fd int, events uint32, data uint64) error {
	ps.mu.Lock()
	reg, ok := ps.regs[fd]
	if !ok {
		ps.mu.Unlock()
		return unix.ENOENT
	}
	if !sameFile(fd, reg.kind, reg.ident) {
		metrics.Add(metrics.PollStaleRegistrations, 1)
		delete(ps.regs, fd)
		ps.mu.Unlock()
		return unix.EBADF
	}
	ps.mu.Unlock()

	// Re-arming from scratch keeps the filter set exactly in sync with
	// the new mask and also revives a quiescent one-shot registration.
	ps.disarm(reg)
	ps.mu.Lock()
	reg.events = events
	reg.data = data
	reg.fired = false
	reg.gen = generation.Inc()
	ps.mu.Unlock()
	if err := ps.arm(reg); err != nil {
		ps.mu.Lock()
		delete(ps.regs, fd)
		ps.mu.Unlock()
		return err
	}
	return nil
}

func (ps *PollSet) del(fd int) error {
	ps.mu.Lock()
	reg, ok := ps.regs[fd]
	if !ok {
		ps.mu.Unlock()
		return unix.ENOENT
	}
	if !sameFile(fd, reg.kind, reg.ident) {
		metrics.Add(metrics.PollStaleRegistrations, 1)
		delete(ps.regs, fd)
		ps.mu.Unlock()
		return unix.EBADF
	}
	delete(ps.regs, fd)
	ps.mu.Unlock()
	ps.disarm(reg)
	return nil
}

// filtersFor derives the kqueue filter set for a requested mask.
func (ps *PollSet) filtersFor(reg *registration) (read, write, except bool) {
	if reg.kind.emulated() || reg.kind == kindListener {
		// Kqueue-backed contexts and listeners are pure readability
		// watches; a write filter on them is meaningless or invalid.
		read = reg.events&In != 0 || reg.kind.emulated()
		if reg.kind == kindListener {
			read = true
		}
		return read, false, false
	}
	read = reg.events&(In|RdHup) != 0
	write = reg.events&Out != 0
	if reg.events&Pri != 0 {
		if hasExceptFilter && reg.kind == kindStream {
			except = true
		} else {
			// In-band fallback: out-of-band arrival surfaces
			// through the read filter and SIOCATMARK.
			read = true
		}
	}
	if !read && !write {
		// Error and hang-up are never masked, so something must be
		// armed to observe them.
		read = true
	}
	return read, write, except
}

// arm installs the filters a registration asks for, rolling back on the
// first failure.
func (ps *PollSet) arm(reg *registration) error {
	read, write, except := ps.filtersFor(reg)

	var flags uint16 = unix.EV_ADD | unix.EV_ENABLE
	if reg.edge() {
		flags |= unix.EV_CLEAR
	}
	if reg.oneshot() {
		flags |= unix.EV_ONESHOT
	}

	var changes []unix.Kevent_t
	appendChange := func(filter int16) {
		kev := unix.Kevent_t{
			Ident:  keventIdent(reg.fd),
			Filter: filter,
			Flags:  flags,
		}
		SetUdata(&kev, uintptr(reg.gen))
		changes = append(changes, kev)
	}
	if read {
		appendChange(unix.EVFILT_READ)
	}
	if write {
		appendChange(unix.EVFILT_WRITE)
	}
	if except {
		changes = append(changes, exceptChange(reg, flags))
	}

	if err := ps.kq.Apply(changes); err != nil {
		// Mark every attempted filter so disarm removes the ones the
		// kernel did accept.
		ps.mu.Lock()
		reg.readArmed, reg.writeArmed, reg.exceptArmed = read, write, except
		ps.mu.Unlock()
		ps.disarm(reg)
		return err
	}
	ps.mu.Lock()
	reg.readArmed, reg.writeArmed, reg.exceptArmed = read, write, except
	ps.mu.Unlock()
	return nil
}

// disarm removes whatever filters the registration installed. Filters the
// kernel already dropped (closed descriptor, one-shot delivery) are fine
// to miss.
func (ps *PollSet) disarm(reg *registration) {
	var changes []unix.Kevent_t
	del := func(filter int16) {
		changes = append(changes, unix.Kevent_t{
			Ident:  keventIdent(reg.fd),
			Filter: filter,
			Flags:  unix.EV_DELETE,
		})
	}
	ps.mu.Lock()
	read, write, except := reg.readArmed, reg.writeArmed, reg.exceptArmed
	reg.readArmed, reg.writeArmed, reg.exceptArmed = false, false, false
	ps.mu.Unlock()
	if read {
		del(unix.EVFILT_READ)
	}
	if write {
		del(unix.EVFILT_WRITE)
	}
	if except {
		del(exceptFilter)
	}
	if len(changes) > 0 {
		ps.kq.ApplyDiscard(changes)
	}
}

func keventIdent(fd int) uint64 {
	return uint64(fd)
}
