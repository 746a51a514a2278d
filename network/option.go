package network

type Option func(ops *Options)

type Options struct {
	reusePort            bool
	tcpNoDelay           bool
	socketSendBufferSize int
	socketRcvBufferSize  int
	loadBalance          LoadBalance
}

func loadOptions(op []Option) *Options {
	ops := &Options{}
	for _, f := range op {
		f(ops)
	}

	if ops.loadBalance == nil {
		ops.loadBalance = NewLoadBalanceRoundRobin()
	}
	return ops
}

// WithReusePort lets several processes share the listening port.
func WithReusePort(reusePort bool) Option {
	return func(ops *Options) {
		ops.reusePort = reusePort
	}
}

func WithTcpNoDelay(tcpNoDelay bool) Option {
	return func(ops *Options) {
		ops.tcpNoDelay = tcpNoDelay
	}
}

func WithSocketSendBufferSize(sendBufSize int) Option {
	return func(ops *Options) {
		ops.socketSendBufferSize = sendBufSize
	}
}

func WithSocketRcvBufferSize(rcvBufSize int) Option {
	return func(ops *Options) {
		ops.socketRcvBufferSize = rcvBufSize
	}
}

func WithLoadBalance(loadBalance LoadBalance) Option {
	return func(ops *Options) {
		ops.loadBalance = loadBalance
	}
}
