//go:build !linux && !darwin && !freebsd

package main

import "github.com/go-rudp/rudp"

func watchSignals(sock *rudp.Socket) {}
