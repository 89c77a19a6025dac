package cli

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const ordersBody = `[
  {"id":1,"estado":"PENDIENTE","fechaPedido":"2025-03-14T12:01:00","total":25.50,
   "telefonoContacto":"999 111 222",
   "detalles":[{"platoId":3,"platoNombre":"Ceviche","cantidad":2,"precioUnitario":12.75}]},
  {"id":2,"estado":"EN_PREPARACION","fechaPedido":"2025-03-14T12:05:00","total":18.00,"revision":4}
]`

// fakeOrderService serves ordersBody and answers status updates with
// updateStatus/updateBody.
type fakeOrderService struct {
	*httptest.Server

	mu           sync.Mutex
	updates      []string
	updateStatus int
	updateBody   string
}

func newFakeOrderService(t *testing.T) *fakeOrderService {
	t.Helper()
	f := &fakeOrderService{updateStatus: http.StatusOK}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/admin/pedidos":
			_, _ = io.WriteString(w, ordersBody)
		case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/estado"):
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.updates = append(f.updates, r.URL.Path+" "+string(body))
			status, resp := f.updateStatus, f.updateBody
			f.mu.Unlock()
			w.WriteHeader(status)
			_, _ = io.WriteString(w, resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeOrderService) Updates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.updates...)
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
