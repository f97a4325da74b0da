//go:build !unix

package main

// fileLock is a no-op on platforms without flock.
type fileLock struct{}

func acquireLock(string) (*fileLock, error) { return &fileLock{}, nil }

func (l *fileLock) release() {}
