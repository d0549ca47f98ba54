// Package virtio drives a legacy MMIO VirtIO block device (spec.md §4.5),
// grounded tightly on original_source/kernel/src/virtio.rs: the same
// descriptor/avail/used ring layout, the same three-descriptor request
// chain (header, data, status byte), the same freelist and in-flight
// table keyed by the chain's head descriptor index.
//
// This package applies the redesign flagged in spec.md §9: rw blocks via
// sched.Sleep(&buf, dev.lock) instead of busy-waiting on buf.Disk, and the
// interrupt handler wakes the waiting process with sched.Wakeup(&buf)
// instead of only clearing the flag. Request/descriptor bookkeeping is
// additionally shaped after biscuit's Bdev_req_t/Bdev_block_t lifecycle
// (fs/blk.go): an explicit in-flight record keyed by descriptor index,
// freed once the completion is observed.
package virtio

import (
	"unsafe"

	"rvcore/arch"
	"rvcore/kerr"
	"rvcore/klog"
	"rvcore/lock"
	"rvcore/mem"
	"rvcore/proc"
	"rvcore/sched"
)

// DESC_NUM is the fixed descriptor ring size (spec.md §3).
const DESC_NUM = 8

// BSIZE is the kernel's logical block size; the device's sector size is
// 512 bytes, so one block spans two sectors (spec.md §6).
const BSIZE = 1024

// MMIO register offsets from the device's base (spec.md §6).
const (
	regMagic          = 0x0
	regVersion        = 0x4
	regDeviceID       = 0x8
	regVendorID       = 0xc
	regDeviceFeatures = 0x10
	regGuestPageSize  = 0x28
	regQueueSel       = 0x30
	regQueueNumMax    = 0x34
	regQueueNum       = 0x38
	regQueuePFN       = 0x40
	regQueueNotify    = 0x50
	regStatus         = 0x70
)

const (
	magicExpected   = 0x74726976
	versionExpected = 1
	deviceIDExpected = 2
	vendorIDExpected = 0x554d4551
)

const (
	statusAcknowledge = 1
	statusDriver      = 1 << 1
	statusFeaturesOK  = 1 << 3
	statusDriverOK    = 1 << 2
)

// Feature bits the driver clears during negotiation (spec.md §4.5).
const (
	featBlkRO            = 5
	featBlkSCSI          = 7
	featBlkConfigWCE     = 11
	featBlkMQ            = 12
	featAnyLayout        = 27
	featRingIndirectDesc = 28
	featRingEventIdx     = 29
)

// MMIO is the register-level boundary to the device. A real port backs
// this with volatile loads/stores at VIRTIO_MMIO_BASE (0x10001000); tests
// back it with an in-memory fake (see fakeRegs in virtio_test.go).
type MMIO interface {
	Read32(reg uint32) uint32
	Write32(reg uint32, val uint32)
}

// VRingDesc is one descriptor in the ring (spec.md §3).
type VRingDesc struct {
	Addr  uint64
	Len   uint32
	Flags uint16
	Next  uint16
}

const (
	VRING_DESC_F_NEXT  uint16 = 1
	VRING_DESC_F_WRITE uint16 = 2
)

// VRingUsedElem is one completion record in the used ring.
type VRingUsedElem struct {
	ID  uint32
	Len uint32
}

// UsedArea is the device-to-driver completion ring.
type UsedArea struct {
	Flags uint16
	Idx   uint16
	Elems [DESC_NUM]VRingUsedElem
}

// BlkOutHdr is the request header placed in descriptor 0.
type BlkOutHdr struct {
	Type     uint32
	Reserved uint32
	Sector   uint64
}

const (
	VIRTIO_BLK_T_IN  uint32 = 0
	VIRTIO_BLK_T_OUT uint32 = 1
)

// Buf is a disk block buffer (spec.md §3). While DiskOwned is set, no CPU
// may touch Data; the driver clears it once the caller regains ownership.
type Buf struct {
	Valid     bool
	DiskOwned int32
	Dev       uint32
	Blockno   uint32
	Data      [BSIZE]byte
}

type inflight_t struct {
	buf    *Buf
	status byte
}

// availLen is the number of uint16 slots in the avail ring: the rest of
// the descriptor ring's page after DESC_NUM descriptors (spec.md §3:
// "used area lies exactly one page apart" from desc).
const availLen = (mem.PGSIZE - DESC_NUM*16) / 2

// Device_t is one VirtIO block device instance (spec.md §3): a
// page-aligned, physically contiguous object so its physical page number
// can be handed to the hardware queue.
type Device_t struct {
	lock *lock.Spinlock_t
	regs MMIO
	base mem.Pa_t

	descP  *[DESC_NUM]VRingDesc
	availP *[availLen]uint16
	usedP  *UsedArea

	free    [DESC_NUM]bool
	usedIdx uint16
	info    [DESC_NUM]*inflight_t
}

// New allocates the device object's backing pages (two pages: descriptor
// ring + avail ring in the first, used ring in the second) and attaches
// the register interface. Callers must still call Init before issuing
// requests.
func New(regs MMIO) *Device_t {
	base := mem.Alloc.Allocate(2 * mem.PGSIZE)
	d := &Device_t{lock: lock.New("virtio"), base: base, regs: regs}
	d.mapLayout()
	return d
}

func (d *Device_t) mapLayout() {
	page0 := mem.Dmap(d.base)
	d.descP = (*[DESC_NUM]VRingDesc)(unsafe.Pointer(&page0[0]))
	d.availP = (*[availLen]uint16)(unsafe.Pointer(&page0[DESC_NUM*16]))
	page1 := mem.Dmap(d.base + mem.PGSIZE)
	d.usedP = (*UsedArea)(unsafe.Pointer(&page1[0]))
}

// Init performs the legacy MMIO handshake (spec.md §4.5): verify
// magic/version/device/vendor id, step through the status bits, negotiate
// features, program the guest page size and queue geometry, and hand the
// device object's physical page number to QUEUE_PFN.
func (d *Device_t) Init() {
	if d.regs.Read32(regMagic) != magicExpected {
		klog.Fatalf("virtio: bad magic value")
	}
	if d.regs.Read32(regVersion) != versionExpected {
		klog.Fatalf("virtio: bad version")
	}
	if d.regs.Read32(regDeviceID) != deviceIDExpected {
		klog.Fatalf("virtio: bad device id")
	}
	if d.regs.Read32(regVendorID) != vendorIDExpected {
		klog.Fatalf("virtio: bad vendor id")
	}

	status := uint32(0)
	status |= statusAcknowledge
	d.regs.Write32(regStatus, status)

	status |= statusDriver
	d.regs.Write32(regStatus, status)

	features := d.regs.Read32(regDeviceFeatures)
	features &^= 1 << featBlkRO
	features &^= 1 << featBlkSCSI
	features &^= 1 << featBlkConfigWCE
	features &^= 1 << featBlkMQ
	features &^= 1 << featAnyLayout
	features &^= 1 << featRingIndirectDesc
	features &^= 1 << featRingEventIdx
	d.regs.Write32(regDeviceFeatures, features)

	status |= statusFeaturesOK
	d.regs.Write32(regStatus, status)
	status |= statusDriverOK
	d.regs.Write32(regStatus, status)

	d.regs.Write32(regGuestPageSize, mem.PGSIZE)

	d.regs.Write32(regQueueSel, 0)
	max := d.regs.Read32(regQueueNumMax)
	if max == 0 {
		klog.Fatalf("virtio: device exposes no queue")
	}
	if max < DESC_NUM {
		klog.Fatalf("virtio: queue max %d smaller than DESC_NUM %d", max, DESC_NUM)
	}
	d.regs.Write32(regQueueNum, DESC_NUM)
	d.regs.Write32(regQueuePFN, uint32(d.base>>mem.PGSHIFT))

	for i := range d.free {
		d.free[i] = true
	}
}

func (d *Device_t) allocDesc() (int, bool) {
	for i := 0; i < DESC_NUM; i++ {
		if d.free[i] {
			d.free[i] = false
			return i, true
		}
	}
	return 0, false
}

func (d *Device_t) freeDesc(i int) {
	if i < 0 || i >= DESC_NUM {
		klog.Fatalf("virtio: invalid descriptor index %d", i)
	}
	if d.free[i] {
		klog.Fatalf("virtio: double free of descriptor %d", i)
	}
	d.descP[i] = VRingDesc{}
	d.free[i] = true
}

func (d *Device_t) alloc3Desc() ([3]int, bool) {
	var idx [3]int
	for i := 0; i < 3; i++ {
		j, ok := d.allocDesc()
		if !ok {
			for k := 0; k < i; k++ {
				d.freeDesc(idx[k])
			}
			return idx, false
		}
		idx[i] = j
	}
	return idx, true
}

func (d *Device_t) freeChain(i int) {
	for {
		next := d.descP[i].Next
		hasNext := d.descP[i].Flags&VRING_DESC_F_NEXT != 0
		d.freeDesc(i)
		if !hasNext {
			break
		}
		i = int(next)
	}
}

// bufChan derives the wait-channel token sleep/wakeup use from a buffer's
// identity (spec.md §4.5 step 9: "a channel derived from the buffer").
func bufChan(b *Buf) uint64 {
	return uint64(uintptr(unsafe.Pointer(b)))
}

// rw implements spec.md §4.5's request lifecycle. p is the calling
// process's kernel thread (needed to block it via the scheduler); pool is
// the process pool the redesigned sleep/wakeup operates over.
func (d *Device_t) rw(p *proc.Proc_t, pool *sched.Pool_t, b *Buf, write bool) kerr.Err_t {
	sector := uint64(b.Blockno) * (BSIZE / 512)

	d.lock.Lock()

	var idx [3]int
	for {
		var ok bool
		idx, ok = d.alloc3Desc()
		if ok {
			break
		}
		// Recoverable transient (spec.md §7): retry with busy-wait;
		// descriptors free up as earlier requests on other harts
		// complete. The device lock is dropped between attempts so
		// those requests can take it to free their chains.
		d.lock.Unlock()
		d.lock.Lock()
	}

	hdr := &BlkOutHdr{Sector: sector}
	if write {
		hdr.Type = VIRTIO_BLK_T_OUT
	} else {
		hdr.Type = VIRTIO_BLK_T_IN
	}

	d.descP[idx[0]] = VRingDesc{
		Addr:  uint64(uintptr(unsafe.Pointer(hdr))),
		Len:   uint32(unsafe.Sizeof(*hdr)),
		Flags: VRING_DESC_F_NEXT,
		Next:  uint16(idx[1]),
	}

	dataFlags := VRING_DESC_F_NEXT
	if !write {
		dataFlags |= VRING_DESC_F_WRITE
	}
	d.descP[idx[1]] = VRingDesc{
		Addr:  uint64(uintptr(unsafe.Pointer(&b.Data[0]))),
		Len:   BSIZE,
		Flags: dataFlags,
		Next:  uint16(idx[2]),
	}

	b.DiskOwned = 1
	info := &inflight_t{buf: b}
	d.info[idx[0]] = info

	d.descP[idx[2]] = VRingDesc{
		Addr:  uint64(uintptr(unsafe.Pointer(&info.status))),
		Len:   1,
		Flags: VRING_DESC_F_WRITE,
	}

	d.availP[2+int(d.availP[1])%DESC_NUM] = uint16(idx[0])
	arch.Fence()
	d.availP[1]++

	d.regs.Write32(regQueueNotify, 0)

	// Redesign (spec.md §9, Open Question): block via sleep/wakeup
	// instead of busy-waiting on b.DiskOwned. Sleep releases d.lock
	// across the handoff and reacquires it before returning.
	pool.Sleep(p, bufChan(b), d.lock)

	d.freeChain(idx[0])
	d.info[idx[0]] = nil
	d.lock.Unlock()
	return 0
}

// Read issues an IN request for blockno on dev and blocks until it
// completes, returning the filled buffer.
func (d *Device_t) Read(p *proc.Proc_t, pool *sched.Pool_t, dev uint32, blockno uint32) *Buf {
	b := &Buf{Dev: dev, Blockno: blockno}
	d.rw(p, pool, b, false)
	return b
}

// Write issues an OUT request for b and blocks until it completes.
func (d *Device_t) Write(p *proc.Proc_t, pool *sched.Pool_t, b *Buf) {
	d.rw(p, pool, b, true)
}

// Intr is the interrupt handler (spec.md §4.5): drain every newly
// completed descriptor from the used ring, clear its buffer's DiskOwned
// flag, and wake whoever is sleeping on it.
func (d *Device_t) Intr(pool *sched.Pool_t) {
	d.lock.Lock()
	defer d.lock.Unlock()

	for d.usedIdx%DESC_NUM != d.usedP.Idx%DESC_NUM {
		id := d.usedP.Elems[d.usedIdx%DESC_NUM].ID
		info := d.info[id]
		if info == nil {
			klog.Fatalf("virtio: interrupt for unknown descriptor %d", id)
		}
		if info.status != 0 {
			klog.Fatalf("virtio: request failed, status %d", info.status)
		}
		info.buf.DiskOwned = 0
		pool.Wakeup(bufChan(info.buf))
		d.usedIdx = (d.usedIdx + 1) % DESC_NUM
	}
}

// DescPa returns the physical address of the descriptor ring, for tests
// verifying the layout invariants of spec.md §8.
func (d *Device_t) DescPa() mem.Pa_t { return d.base }

// UsedPa returns the physical address of the used ring.
func (d *Device_t) UsedPa() mem.Pa_t { return d.base + mem.PGSIZE }
