package main_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSongRequests(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "SongRequests Suite")
}
