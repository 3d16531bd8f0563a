package session_test

import (
	"fmt"

	"github.com/jonwraymond/annosync/session"
)

func ExampleStaticTokenSource() {
	src := session.NewStaticTokenSource("")

	_, ok := src.Token()
	fmt.Println("Before sign-in:", ok)

	src.SetToken("opaque-bearer-token")
	token, ok := src.Token()
	fmt.Println("After sign-in:", ok, token)

	src.Clear()
	_, ok = src.Token()
	fmt.Println("After sign-out:", ok)
	// Output:
	// Before sign-in: false
	// After sign-in: true opaque-bearer-token
	// After sign-out: false
}

func ExampleMonitor() {
	src := session.NewStaticTokenSource("token-1")
	signOuts := 0
	m := session.NewMonitor(src, func() { signOuts++ })

	// Several 401s from concurrent requests trigger one sign-out.
	m.NotifyUnauthorized()
	m.NotifyUnauthorized()
	fmt.Println("Sign-outs:", signOuts)

	// A fresh token re-arms the monitor.
	src.SetToken("token-2")
	m.NotifyUnauthorized()
	fmt.Println("Sign-outs:", signOuts)
	// Output:
	// Sign-outs: 1
	// Sign-outs: 2
}
