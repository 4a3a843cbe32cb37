package testing

import (
	"io"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

// Assert fails the test if the condition is false.
func Assert(tb testing.TB, condition bool, msg string, v ...interface{}) {
	tb.Helper()
	if !condition {
		tb.Fatalf(msg, v...)
	}
}

// Ok fails the test if an err is not nil.
func Ok(tb testing.TB, err error) {
	tb.Helper()
	if err != nil {
		tb.Fatalf("unexpected error: %s", err)
	}
}

// Equals fails the test if exp is not equal to act.
func Equals(tb testing.TB, exp, act interface{}) {
	tb.Helper()
	if !reflect.DeepEqual(exp, act) {
		_, file, line, _ := runtime.Caller(1)
		tb.Fatalf("%s:%d: exp: %#v\n\ngot: %#v", filepath.Base(file), line, exp, act)
	}
}

// ErrEquals fails the test if act is nil or act.Error() != exp.
func ErrEquals(tb testing.TB, exp string, act error) {
	tb.Helper()
	if act == nil {
		tb.Fatalf("exp err %q but err was nil", exp)
	}
	if act.Error() != exp {
		tb.Fatalf("exp err: %q but got: %q", exp, act.Error())
	}
}

// ErrContains fails the test if act is nil or act.Error() does not contain
// substr.
func ErrContains(tb testing.TB, substr string, act error) {
	tb.Helper()
	if act == nil {
		tb.Fatalf("exp err to contain %q but err was nil", substr)
	}
	if !strings.Contains(act.Error(), substr) {
		tb.Fatalf("exp err to contain %q but got: %q", substr, act.Error())
	}
}

// ResponseContains fails the test if the response doesn't have the
// expected status code or str is not contained in its body.
func ResponseContains(tb testing.TB, r *httptest.ResponseRecorder, status int, str string) {
	tb.Helper()
	body, err := io.ReadAll(r.Result().Body)
	Ok(tb, err)
	Assert(tb, status == r.Result().StatusCode, "exp %d got %d, body: %s", status, r.Result().StatusCode, string(body))
	Assert(tb, strings.Contains(string(body), str), "exp %q to be contained in %q", str, string(body))
}

// Contains fails the test if the slice doesn't contain the expected element.
func Contains(tb testing.TB, exp interface{}, slice []string) {
	tb.Helper()
	for _, v := range slice {
		if v == exp {
			return
		}
	}
	tb.Fatalf("exp: %#v to be in: %#v", exp, slice)
}
