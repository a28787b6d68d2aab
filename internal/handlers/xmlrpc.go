package handlers

import (
	"encoding/xml"
	"fmt"
	"net/http"

	"github.com/aabbtree77/headless/internal/httpx"
	"github.com/aabbtree77/headless/internal/protect"
)

const (
	faultParse         = -32700
	faultUnknownMethod = -32601
)

// LegacyRPCHandler is the XML-RPC endpoint as seen while it is enabled.
// It serves no methods: every call is answered with a fault.
type LegacyRPCHandler struct {
	Guards []protect.Guard
}

type methodCall struct {
	XMLName    xml.Name `xml:"methodCall"`
	MethodName string   `xml:"methodName"`
}

func (h *LegacyRPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !protect.Run(h.Guards, w, r) {
		return
	}

	if r.Method != http.MethodPost {
		httpx.WriteText(w, http.StatusOK, "XML-RPC server accepts POST requests only.")
		return
	}

	var call methodCall
	if err := xml.NewDecoder(r.Body).Decode(&call); err != nil || call.MethodName == "" {
		writeFault(w, faultParse, "parse error. not well formed")
		return
	}
	writeFault(w, faultUnknownMethod, fmt.Sprintf("server error. requested method %s does not exist.", call.MethodName))
}

type member struct {
	Name  string `xml:"name"`
	Value value  `xml:"value"`
}

type value struct {
	Int    *int    `xml:"int,omitempty"`
	String *string `xml:"string,omitempty"`
}

type faultResponse struct {
	XMLName xml.Name `xml:"methodResponse"`
	Members []member `xml:"fault>value>struct>member"`
}

func writeFault(w http.ResponseWriter, code int, msg string) {
	body, err := xml.Marshal(faultResponse{Members: []member{
		{Name: "faultCode", Value: value{Int: &code}},
		{Name: "faultString", Value: value{String: &msg}},
	}})
	if err != nil {
		httpx.InternalError(w, "cannot encode fault")
		return
	}
	httpx.WriteRaw(w, http.StatusOK, "text/xml; charset=utf-8", append([]byte(xml.Header), body...))
}
