package rsp

// Channel is a synchronous command/response link to a debug stub. Send
// transmits one command and blocks until its reply telegram arrives. Only
// one command may be outstanding at a time.
//
// Error replies (Exx) are returned as ordinary reply strings; a non-nil
// error means the transport itself failed and the channel should be
// considered dead.
type Channel interface {
	Send(command string) (string, error)
}

// ChannelFunc adapts a function to the Channel interface.
type ChannelFunc func(command string) (string, error)

// Send implements Channel.
func (f ChannelFunc) Send(command string) (string, error) {
	return f(command)
}
