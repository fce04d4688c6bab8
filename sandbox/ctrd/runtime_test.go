package ctrd

import (
	"testing"

	"pkt.systems/sandrun/sandbox"
)

func TestMapMounts(t *testing.T) {
	mounts := mapMounts([]sandbox.Mount{
		{Source: "/srv/res", Target: "/golem/resources/", ReadOnly: true},
		{Source: "/srv/out", Target: "/golem/output/"},
	})
	if len(mounts) != 2 {
		t.Fatalf("mounts %v", mounts)
	}
	res := mounts[0]
	if res.Type != "bind" || res.Source != "/srv/res" || res.Destination != "/golem/resources" {
		t.Fatalf("resources mount %+v", res)
	}
	if len(res.Options) != 2 || res.Options[0] != "rbind" || res.Options[1] != "ro" {
		t.Fatalf("resources options %v", res.Options)
	}
	out := mounts[1]
	if out.Destination != "/golem/output" {
		t.Fatalf("output mount %+v", out)
	}
	if len(out.Options) != 2 || out.Options[1] != "rw" {
		t.Fatalf("output options %v", out.Options)
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  ", ""},
		{"/run/containerd/containerd.sock", "/run/containerd/containerd.sock"},
		{"unix:///run/containerd/containerd.sock", "/run/containerd/containerd.sock"},
		{"unix:/run/containerd/containerd.sock", "/run/containerd/containerd.sock"},
	}
	for _, tc := range cases {
		if got := normalizeAddress(tc.in); got != tc.want {
			t.Errorf("normalizeAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCandidateAddresses(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	addrs := candidateAddresses("unix:///custom/containerd.sock")
	want := []string{
		"/custom/containerd.sock",
		"/run/user/1000/containerd/containerd.sock",
		"/run/containerd/containerd.sock",
	}
	if len(addrs) != len(want) {
		t.Fatalf("addresses %v, want %v", addrs, want)
	}
	for i := range want {
		if addrs[i] != want[i] {
			t.Fatalf("address[%d] = %q, want %q", i, addrs[i], want[i])
		}
	}
}

func TestCandidateAddressesDeduplicates(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	addrs := candidateAddresses("/run/containerd/containerd.sock")
	if len(addrs) != 1 {
		t.Fatalf("addresses %v, want a single deduplicated entry", addrs)
	}
}
