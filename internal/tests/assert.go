package tests

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func AssertIsNil(t *testing.T, v interface{}) {
	t.Helper()
	if !isNil(v) {
		t.Errorf("[%v] was expected to be nil", v)
	}
}

func AssertAllNotNil(t *testing.T, vv ...interface{}) {
	t.Helper()
	for _, v := range vv {
		AssertNotNil(t, v)
	}
}

func AssertNotNil(t *testing.T, v interface{}) {
	t.Helper()
	if isNil(v) {
		t.Fatalf("[%v] was expected to be non-nil", v)
	}
}

func AssertEqual(t *testing.T, e, g interface{}) {
	t.Helper()
	if !equal(e, g) {
		t.Errorf("Expected [%+v], got [%+v]", e, g)
	}
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Errorf("Error occurred [%v]", err)
	}
}

// AssertErrorIs fails the test unless errors.Is(err, target).
func AssertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("error [%v] is not [%v]", err, target)
	}
}

func AssertErrorContains(t *testing.T, err error, s string) {
	t.Helper()
	if err == nil {
		t.Error("err is nil")
		return
	}
	if !strings.Contains(err.Error(), s) {
		t.Errorf("%q is not included in error %q", s, err.Error())
	}
}

func AssertContains(t *testing.T, s, substr string, shouldContain bool) {
	t.Helper()
	s = strings.ToLower(s)
	isContain := strings.Contains(s, strings.ToLower(substr))
	if shouldContain {
		if !isContain {
			t.Errorf("%q is not included in %s", substr, s)
		}
	} else {
		if isContain {
			t.Errorf("%q is included in %q", substr, s)
		}
	}
}

func equal(expected, got interface{}) bool {
	return reflect.DeepEqual(expected, got)
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	kind := rv.Kind()
	if kind >= reflect.Chan && kind <= reflect.Slice && rv.IsNil() {
		return true
	}
	return false
}
