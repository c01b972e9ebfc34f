package ext

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/guesthost/internal/hostapi"
	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

const fetchAPI = "fetch"

// FetchInit is the guest's second argument to fetch
type FetchInit struct {
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// Fetch installs a global fetch. http(s) targets are checked by URL, file
// URLs by an open-for-read check and vsock targets are always refused.
type Fetch struct {
	perms  hostapi.FetchPermissions
	client *FetchClient
}

func NewFetch(perms hostapi.FetchPermissions, client *FetchClient) *Fetch {
	return &Fetch{perms: perms, client: client}
}

func (f *Fetch) Name() string { return "fetch" }

func (f *Fetch) Register(rt *sandbox.Runtime, vm *goja.Runtime) error {
	return vm.Set("fetch", func(call goja.FunctionCall) goja.Value {
		target := stringArg(vm, call, 0, "url")
		var init FetchInit
		options(vm, call.Argument(1), &init)

		u, err := url.Parse(target)
		if err != nil {
			panic(vm.NewTypeError("invalid URL %q: %v", target, err))
		}
		switch u.Scheme {
		case "http", "https", "file", "vsock":
		default:
			panic(vm.NewTypeError("unsupported URL scheme %q", u.Scheme))
		}

		return async(rt, vm, fetchAPI,
			func(ctx context.Context) (*FetchResponse, error) {
				return f.do(ctx, u, init)
			},
			f.response,
		)
	})
}

func (f *Fetch) do(ctx context.Context, u *url.URL, init FetchInit) (*FetchResponse, error) {
	switch u.Scheme {
	case "file":
		return f.readFile(u)
	case "vsock":
		cid, port := parseVsock(u.Opaque)
		return nil, f.perms.CheckNetVsock(cid, port, fetchAPI)
	}

	if err := f.perms.CheckNetURL(u, fetchAPI); err != nil {
		return nil, err
	}
	req := FetchRequest{
		Method:  init.Method,
		URL:     u.String(),
		Headers: init.Headers,
		Body:    init.Body,
	}
	return f.client.Do(ctx, req, func(next *url.URL) error {
		return f.perms.CheckNetURL(next, fetchAPI)
	})
}

func (f *Fetch) readFile(u *url.URL) (*FetchResponse, error) {
	checked, err := f.perms.CheckOpen(u.Path, true, false, false, fetchAPI)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(checked.Path)
	if err != nil {
		return nil, err
	}
	return &FetchResponse{
		Status:     http.StatusOK,
		StatusText: http.StatusText(http.StatusOK),
		URL:        u.String(),
		Headers:    map[string]string{"content-length": strconv.Itoa(len(data))},
		Body:       data,
	}, nil
}

// parseVsock reads "cid:port"; malformed parts are zero
func parseVsock(opaque string) (cid, port uint32) {
	c, p, _ := strings.Cut(opaque, ":")
	if v, err := strconv.ParseUint(c, 10, 32); err == nil {
		cid = uint32(v)
	}
	if v, err := strconv.ParseUint(p, 10, 32); err == nil {
		port = uint32(v)
	}
	return cid, port
}

// response builds the guest Response object
func (f *Fetch) response(vm *goja.Runtime, resp *FetchResponse) (goja.Value, error) {
	text := strings.ToValidUTF8(string(resp.Body), "\uFFFD")

	headers := vm.NewObject()
	for name, value := range resp.Headers {
		if err := headers.Set(name, value); err != nil {
			return nil, err
		}
	}

	obj := vm.NewObject()
	fields := map[string]interface{}{
		"status":     resp.Status,
		"statusText": resp.StatusText,
		"ok":         resp.Status >= 200 && resp.Status < 300,
		"url":        resp.URL,
		"redirected": resp.Redirected,
		"headers":    headers,
		"text": func(goja.FunctionCall) goja.Value {
			p, err := resolved(vm, vm.ToValue(text))
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return p
		},
		"json": func(goja.FunctionCall) goja.Value {
			return parseJSON(vm, text)
		},
	}
	for name, v := range fields {
		if err := obj.Set(name, v); err != nil {
			return nil, fmt.Errorf("failed to build response: %w", err)
		}
	}
	return obj, nil
}

// parseJSON returns a promise of JSON.parse(text), rejected with the
// guest's SyntaxError on malformed input
func parseJSON(vm *goja.Runtime, text string) goja.Value {
	promise, resolve, reject := vm.NewPromise()
	parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	if !ok {
		panic(vm.NewTypeError("JSON.parse is not available"))
	}
	v, err := parse(goja.Undefined(), vm.ToValue(text))
	if err != nil {
		if exc, ok := err.(*goja.Exception); ok {
			_ = reject(exc.Value())
		} else {
			_ = reject(vm.NewGoError(err))
		}
	} else {
		_ = resolve(v)
	}
	return vm.ToValue(promise)
}
