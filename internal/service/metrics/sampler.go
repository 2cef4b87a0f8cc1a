package metrics

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Snapshot 是一次模拟的系统负载读数，单位为百分比。
type Snapshot struct {
	CPU       int       `json:"cpu"`
	RAM       int       `json:"ram"`
	Network   int       `json:"net"`
	Sessions  int       `json:"sessions"`
	Timestamp time.Time `json:"timestamp"`
}

// Sampler 生成模拟的 CPU/内存/网络读数，供前端仪表盘展示。
type Sampler struct {
	sessions func() int

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewSampler 创建采样器。sessions 用于附带当前会话数，可为空。
func NewSampler(src rand.Source, sessions func() int) *Sampler {
	if src == nil {
		src = rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)
	}
	return &Sampler{sessions: sessions, rng: rand.New(src), now: time.Now}
}

// Sample 返回 cpu 10-29、ram 40-49、net 0-99 范围内的读数。
func (s *Sampler) Sample() Snapshot {
	s.mu.Lock()
	snapshot := Snapshot{
		CPU:       10 + s.rng.IntN(20),
		RAM:       40 + s.rng.IntN(10),
		Network:   s.rng.IntN(100),
		Timestamp: s.now().UTC(),
	}
	s.mu.Unlock()

	if s.sessions != nil {
		snapshot.Sessions = s.sessions()
	}
	return snapshot
}
