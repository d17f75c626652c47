package ipc

import (
	"bytes"
	"context"
	"errors"
	"io"

	"ltrnp/internal/control"
	"ltrnp/internal/engine"
	"ltrnp/internal/logging"
	"ltrnp/internal/npclient"
)

// DefaultHistoryLimit is used when a history request names no limit.
const DefaultHistoryLimit = 20

// Controller is the daemon side of operator commands.
type Controller interface {
	Status() StatusResponse
	Recenter() error
	TogglePause() (control.Mode, error)
	History(limit int) (*HistoryResponse, error)
	ReloadApps() (int, error)
	WriteMetrics(w io.Writer, format string) error
}

// BridgeHandler serves host calls through an npclient.Client and
// operator commands through a Controller.
type BridgeHandler struct {
	np   *npclient.Client
	ctrl Controller
	log  *logging.Logger
}

// NewBridgeHandler creates a handler.
func NewBridgeHandler(np *npclient.Client, ctrl Controller, log *logging.Logger) *BridgeHandler {
	if log == nil {
		log = logging.Default()
	}
	return &BridgeHandler{np: np, ctrl: ctrl, log: log.WithComponent("ipc")}
}

// HandleMessage processes an IPC message
func (h *BridgeHandler) HandleMessage(ctx context.Context, peer *Peer, msg *Message) (*Message, error) {
	if msg.Header.Type.IsHostCall() {
		return h.handleHostCall(ctx, msg)
	}

	switch msg.Header.Type {
	case MsgStatus:
		st := h.ctrl.Status()
		return NewJSONMessage(MsgStatus.Response(), msg.Header.RequestID, &st)

	case MsgRecenter:
		if err := h.ctrl.Recenter(); err != nil {
			return controlError(msg.Header.RequestID, err), nil
		}
		return NewJSONMessage(MsgRecenter.Response(), msg.Header.RequestID, nil)

	case MsgTogglePause:
		mode, err := h.ctrl.TogglePause()
		if err != nil {
			return controlError(msg.Header.RequestID, err), nil
		}
		return NewJSONMessage(MsgTogglePause.Response(), msg.Header.RequestID, &ToggleResponse{Mode: mode.String()})

	case MsgHistory:
		var req HistoryRequest
		if len(msg.Payload) > 0 {
			if err := Decode(msg.Payload, &req); err != nil {
				return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid history request"), nil
			}
		}
		if req.Limit <= 0 {
			req.Limit = DefaultHistoryLimit
		}
		hist, err := h.ctrl.History(req.Limit)
		if err != nil {
			return controlError(msg.Header.RequestID, err), nil
		}
		return NewJSONMessage(MsgHistory.Response(), msg.Header.RequestID, hist)

	case MsgReloadApps:
		n, err := h.ctrl.ReloadApps()
		if err != nil {
			return controlError(msg.Header.RequestID, err), nil
		}
		return NewJSONMessage(MsgReloadApps.Response(), msg.Header.RequestID, &ReloadResponse{Entries: n})

	case MsgMetrics:
		var req MetricsRequest
		if len(msg.Payload) > 0 {
			if err := Decode(msg.Payload, &req); err != nil {
				return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid metrics request"), nil
			}
		}
		if req.Format != "" && req.Format != "prometheus" && req.Format != "json" {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "unknown metrics format "+req.Format), nil
		}
		var buf bytes.Buffer
		if err := h.ctrl.WriteMetrics(&buf, req.Format); err != nil {
			return controlError(msg.Header.RequestID, err), nil
		}
		return NewMessage(MsgMetrics.Response(), msg.Header.RequestID, buf.Bytes()), nil

	default:
		h.log.Debug("unknown message", "client", peer.ID, "type", msg.Header.Type)
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "unknown message type "+msg.Header.Type.String()), nil
	}
}

// handleHostCall answers one host call. Only malformed arguments produce
// an error message; everything else returns a result code the host
// understands.
func (h *BridgeHandler) handleHostCall(ctx context.Context, msg *Message) (*Message, error) {
	id := msg.Header.RequestID
	reply := func(code int32, body []byte) (*Message, error) {
		return NewMessage(msg.Header.Type.Response(), id, EncodeResult(code, body)), nil
	}
	ok := npclient.ResultOK

	switch msg.Header.Type {
	case MsgNPGetSignature:
		b, err := h.np.GetSignature().MarshalBinary()
		if err != nil {
			return nil, err
		}
		return reply(ok, b)

	case MsgNPQueryVersion:
		return reply(ok, PutInt16(int16(h.np.QueryVersion())))

	case MsgNPReCenter:
		_ = h.np.ReCenter()
		return reply(ok, nil)

	case MsgNPRegisterWindowHandle:
		handle, err := Uint64(msg.Payload)
		if err != nil {
			return NewErrorMessage(id, ErrInvalidRequest, err.Error()), nil
		}
		h.np.RegisterWindowHandle(handle)
		return reply(ok, nil)

	case MsgNPUnregisterWindowHandle:
		h.np.UnregisterWindowHandle()
		return reply(ok, nil)

	case MsgNPRegisterProgramProfileID:
		pid, err := Int16(msg.Payload)
		if err != nil {
			return NewErrorMessage(id, ErrInvalidRequest, err.Error()), nil
		}
		return reply(npclient.Result(h.np.RegisterProgramProfileID(int(pid))), nil)

	case MsgNPRequestData:
		mask, err := Int16(msg.Payload)
		if err != nil {
			return NewErrorMessage(id, ErrInvalidRequest, err.Error()), nil
		}
		h.np.RequestData(mask)
		return reply(ok, nil)

	case MsgNPGetData:
		b, err := h.np.GetData().MarshalBinary()
		if err != nil {
			return nil, err
		}
		return reply(ok, b)

	case MsgNPStopCursor:
		h.np.StopCursor()
		return reply(ok, nil)

	case MsgNPStartCursor:
		h.np.StartCursor()
		return reply(ok, nil)

	case MsgNPStartDataTransmission:
		if err := h.np.StartDataTransmission(ctx); err != nil {
			h.log.Debug("start transmission", "error", err)
		}
		return reply(ok, nil)

	case MsgNPStopDataTransmission:
		_ = h.np.StopDataTransmission()
		return reply(ok, nil)
	}
	return NewErrorMessage(id, ErrInvalidRequest, "unknown host call"), nil
}

func controlError(id uint32, err error) *Message {
	code := ErrInternalError
	switch {
	case errors.Is(err, control.ErrNotInitialized):
		code = ErrNotInitialized
	case errors.Is(err, control.ErrNotTracking):
		code = ErrNotTracking
	case errors.Is(err, engine.ErrUnavailable):
		code = ErrUnavailable
	}
	return NewErrorMessage(id, code, err.Error())
}
