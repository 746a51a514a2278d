package network

import (
	"sync"

	murmur32 "github.com/twmb/murmur3"
)

// LoadBalance decides which IO loop an accepted connection lands on. key is
// the name the server minted for the connection; strategies may ignore it.
type LoadBalance interface {
	AllocLoop(key string, loopCount int) int
}

// LoadBalanceRoundRobin hands loops out in turn, so K loops and M
// connections leave every loop with either floor(M/K) or ceil(M/K) of them.
type LoadBalanceRoundRobin struct {
	mutex sync.Mutex
	index int
}

func NewLoadBalanceRoundRobin() *LoadBalanceRoundRobin {
	return &LoadBalanceRoundRobin{}
}

func (lb *LoadBalanceRoundRobin) AllocLoop(key string, loopCount int) int {
	lb.mutex.Lock()
	allocIndex := lb.index % loopCount
	lb.index = (lb.index + 1) % loopCount
	lb.mutex.Unlock()
	return allocIndex
}

// LoadBalanceHash pins a key to a fixed loop, so reconnects with a stable
// key land where their state lives.
type LoadBalanceHash struct {
}

func NewLoadBalanceHash() *LoadBalanceHash {
	return &LoadBalanceHash{}
}

func (lb *LoadBalanceHash) AllocLoop(key string, loopCount int) int {
	return int(murmur32.Sum32([]byte(key)) % uint32(loopCount))
}
