package milvus_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestMilvus(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Milvus Suite")
}
