package serializer

import "github.com/ValentinKolb/dBandit/rpc/common"

// IRPCSerializer converts messages to and from the payload of a transport frame.
// Client and server of one deployment must use the same implementation.
type IRPCSerializer interface {
	// Serialize encodes msg, the returned slice is owned by the caller
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize replaces *msg with the message decoded from b
	Deserialize(b []byte, msg *common.Message) error
}
