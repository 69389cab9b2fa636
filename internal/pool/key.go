package pool

import (
	"fmt"

	"github.com/hwire/hconn/internal/netutil"
)

// Key identifies which idle connections may serve a request.
//
// Two targets share a Key when they have the same scheme class and
// authority. Local-socket targets additionally carry the request path,
// compared by its exact string form, because one socket may front several
// endpoints distinguished by path. Key is comparable and is used directly
// as a map key.
type Key struct {
	Class     netutil.SchemeClass
	Authority string
	Path      string
}

// KeyFor returns the Key of t.
func KeyFor(t netutil.Target) Key {
	k := Key{Class: t.Class, Authority: t.Authority}
	if t.Class == netutil.ClassLocal {
		k.Path = t.Path
	}
	return k
}

func (k Key) String() string {
	if k.Path != "" {
		return fmt.Sprintf("%s|%s|%s", k.Class, k.Authority, k.Path)
	}
	return fmt.Sprintf("%s|%s", k.Class, k.Authority)
}
