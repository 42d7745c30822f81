package archive

import "sync/atomic"

// Holder 以原子指针发布当前归档快照。Load 在首次 Store 之前返回 false，
// 打包层据此跳过尚未初始化的归档。
//
// Holder 对快照持有一个引用；Acquire 为读取方再加一个。被替换的快照在
// 最后一个引用释放时关闭底层 blob，进行中的读取不受影响。
type Holder struct {
	current atomic.Pointer[Reader]
}

// Load 返回当前快照，仅用于读取元数据；要读 blob 请用 Acquire。
func (h *Holder) Load() (*Reader, bool) {
	if h == nil {
		return nil, false
	}
	r := h.current.Load()
	return r, r != nil
}

// Acquire 返回当前快照与对应的 release。调用方读完后必须调用 release。
func (h *Holder) Acquire() (*Reader, func(), bool) {
	if h == nil {
		return nil, nil, false
	}
	for {
		r := h.current.Load()
		if r == nil {
			return nil, nil, false
		}
		if r.retain() {
			return r, r.release, true
		}
		// 快照刚被替换并已释放，重新读取新指针。
	}
}

// Store 发布新快照并交还旧快照的引用，返回是否替换了旧快照。
func (h *Holder) Store(r *Reader) bool {
	r.refs.Store(1)
	previous := h.current.Swap(r)
	if previous == nil {
		return false
	}
	previous.release()
	return true
}

// Initialized 表示是否已有完整加载的归档。
func (h *Holder) Initialized() bool {
	_, ok := h.Load()
	return ok
}
