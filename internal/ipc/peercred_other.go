//go:build !linux

package ipc

import "net"

func peerCredentials(net.Conn) (*peerCred, error) {
	return nil, errNoPeerCredentials
}
