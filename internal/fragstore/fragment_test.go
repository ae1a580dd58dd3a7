package fragstore

import (
	"testing"

	"github.com/go-test/deep"
)

func TestFragmentEncodeDecodeRoundTrip(t *testing.T) {
	cases := []FragmentDescriptor{
		{OwnerID: 0, StartBlock: 0, ByteSize: 8192},
		{OwnerID: FreeID, StartBlock: 17, ByteSize: 0},
		{OwnerID: TableID, StartBlock: 2, ByteSize: 20480},
	}

	for _, want := range cases {
		buf := make([]byte, descriptorSize)
		encodeFragment(want, buf)
		got := decodeFragment(buf)
		if diff := deep.Equal(got, want); diff != nil {
			t.Fatalf("fragment round trip: %v", diff)
		}
	}
}
