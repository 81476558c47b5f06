package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"unicode/utf8"

	"github.com/gobwas/ws"
	"github.com/rmacdonaldsmith/eventhub-go/internal/connection"
	"github.com/rmacdonaldsmith/eventhub-go/internal/hub"
	"github.com/rs/zerolog"
)

// session is the per-connection protocol data attached to a connection.
type session struct {
	path      string
	fragOp    ws.OpCode
	fragments []byte
}

// Handler drives the upgrade handshake and the JSON-RPC channel for hub connections.
type Handler struct {
	config *Config
	logger zerolog.Logger
}

// NewHandler creates a protocol handler
func NewHandler(config *Config) (*Handler, error) {
	if config == nil {
		config = NewConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.SetDefaults()

	return &Handler{
		config: config,
		logger: config.Logger.With().Str("component", "protocol").Logger(),
	}, nil
}

// OnOpen attaches a fresh session to the connection
func (h *Handler) OnOpen(hc *hub.HandlerContext) {
	hc.Connection().Attach(&session{})
}

// OnData advances the connection through the handshake and then processes
// every complete frame that has been buffered.
func (h *Handler) OnData(hc *hub.HandlerContext) error {
	err := h.process(hc)

	var perr *ProtocolError
	if errors.As(err, &perr) && hc.Connection().State() >= connection.StateChannelParse {
		hc.Send(EncodeClose(perr.Status, perr.Reason))
	}
	return err
}

func (h *Handler) process(hc *hub.HandlerContext) error {
	c := hc.Connection()
	sess, _ := c.Attachment().(*session)
	if sess == nil {
		sess = &session{}
		c.Attach(sess)
	}

	if c.State() == connection.StateInit {
		if err := c.SetState(connection.StateHandshakeParse); err != nil {
			return err
		}
	}

	if c.State() == connection.StateHandshakeParse {
		result, err := h.upgrade(c.Inbound())
		if len(result.response) > 0 {
			hc.Send(result.response)
		}
		if err != nil {
			return err
		}
		if result.consumed == 0 {
			return nil
		}
		c.Consume(result.consumed)
		sess.path = result.path

		if err := c.SetState(connection.StateHandshakeOK); err != nil {
			return err
		}
		if err := c.SetState(connection.StateChannelParse); err != nil {
			return err
		}
		hc.Logger().Debug().Str("path", sess.path).Msg("Channel upgraded")
	}

	return h.processFrames(hc, sess)
}

func (h *Handler) processFrames(hc *hub.HandlerContext, sess *session) error {
	c := hc.Connection()

	for {
		header, payload, n, err := parseFrame(c.Inbound(), h.config.MaxMessageSize)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		c.Consume(n)

		if c.State() == connection.StateChannelParse {
			if err := c.SetState(connection.StateChannelOK); err != nil {
				return err
			}
		}
		if err := validateHeader(header); err != nil {
			return err
		}

		switch header.OpCode {
		case ws.OpPing:
			hc.Send(encodePong(payload))
		case ws.OpPong:
		case ws.OpClose:
			code, reason := ws.ParseCloseFrameData(payload)
			hc.Logger().Debug().Int("code", int(code)).Str("reason", reason).Msg("Client closed channel")
			hc.Send(EncodeClose(ws.StatusNormalClosure, ""))
			return ErrClientClosed
		case ws.OpText, ws.OpBinary:
			if sess.fragOp != 0 {
				return protocolErrorf(ws.StatusProtocolError, "new message before previous fragments completed")
			}
			if !header.Fin {
				sess.fragOp = header.OpCode
				sess.fragments = append(sess.fragments[:0], payload...)
				continue
			}
			if err := h.dispatch(hc, header.OpCode, payload); err != nil {
				return err
			}
		case ws.OpContinuation:
			if sess.fragOp == 0 {
				return protocolErrorf(ws.StatusProtocolError, "continuation without a started message")
			}
			if len(sess.fragments)+len(payload) > h.config.MaxMessageSize {
				return protocolErrorf(ws.StatusMessageTooBig, "message exceeds limit %d", h.config.MaxMessageSize)
			}
			sess.fragments = append(sess.fragments, payload...)
			if !header.Fin {
				continue
			}
			op, msg := sess.fragOp, sess.fragments
			sess.fragOp, sess.fragments = 0, nil
			if err := h.dispatch(hc, op, msg); err != nil {
				return err
			}
		default:
			return protocolErrorf(ws.StatusProtocolError, "unknown opcode %d", header.OpCode)
		}
	}
}

// dispatch runs one complete data message as a JSON-RPC call.
func (h *Handler) dispatch(hc *hub.HandlerContext, op ws.OpCode, msg []byte) error {
	if op == ws.OpText && !utf8.Valid(msg) {
		return protocolErrorf(ws.StatusInvalidFramePayloadData, "text message is not valid UTF-8")
	}

	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return h.reply(hc, Response{Error: &RPCError{Code: CodeParseError, Message: "parse error"}})
	}
	if req.Method == "" {
		return h.reply(hc, Response{ID: req.ID, Error: &RPCError{Code: CodeInvalidRequest, Message: "method is required"}})
	}

	ctx := context.Background()
	resp := Response{ID: req.ID}
	log := hc.Logger()

	switch req.Method {
	case MethodSubscribe, MethodUnsubscribe:
		var params TopicParams
		topic, rpcErr := decodeTopic(req.Params, &params)
		if rpcErr != nil {
			resp.Error = rpcErr
			break
		}
		var err error
		if req.Method == MethodSubscribe {
			err = hc.Subscribe(ctx, topic)
		} else {
			err = hc.Unsubscribe(ctx, topic)
		}
		if err != nil {
			resp.Error = errorFor(err)
			break
		}
		log.Debug().Str("method", req.Method).Str("topic", topic).Msg("Subscription changed")
		resp.Result = map[string]string{"topic": topic}

	case MethodUnsubscribeAll:
		n, err := hc.UnsubscribeAll(ctx)
		if err != nil {
			resp.Error = errorFor(err)
			break
		}
		resp.Result = map[string]int{"removed": n}

	case MethodPublish:
		var params PublishParams
		topic, rpcErr := decodeTopic(req.Params, &params)
		if rpcErr != nil {
			resp.Error = rpcErr
			break
		}
		result, err := PublishMessage(ctx, hc, topic, params.Message)
		if err != nil {
			resp.Error = errorFor(err)
			break
		}
		log.Trace().Str("topic", topic).Int("deliveries", result.Deliveries).Msg("Message published")
		resp.Result = result

	case MethodList:
		subs := hc.Subscriptions()
		if subs == nil {
			subs = []string{}
		}
		resp.Result = map[string][]string{"subscriptions": subs}

	case MethodPing:
		resp.Result = "pong"

	case MethodDisconnect:
		resp.Result = "bye"
		if err := h.reply(hc, resp); err != nil {
			return err
		}
		hc.Send(EncodeClose(ws.StatusNormalClosure, "disconnect"))
		return ErrClientClosed

	default:
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}

	return h.reply(hc, resp)
}

// decodeTopic unmarshals params into dst and percent-decodes its topic field.
func decodeTopic(raw json.RawMessage, dst any) (string, *RPCError) {
	if len(raw) == 0 {
		return "", &RPCError{Code: CodeInvalidParams, Message: "params are required"}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return "", &RPCError{Code: CodeInvalidParams, Message: "invalid params: " + err.Error()}
	}

	var encoded string
	switch p := dst.(type) {
	case *TopicParams:
		encoded = p.Topic
	case *PublishParams:
		encoded = p.Topic
	}

	topic, err := DecodeURIComponent(encoded)
	if err != nil {
		return "", errorFor(err)
	}
	return topic, nil
}

func (h *Handler) reply(hc *hub.HandlerContext, resp Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	frame, err := EncodeText(body)
	if err != nil {
		return err
	}
	return hc.Send(frame)
}

// OnClose logs why the channel ended
func (h *Handler) OnClose(hc *hub.HandlerContext, cause error) {
	if cause != nil && !errors.Is(cause, ErrClientClosed) {
		var perr *ProtocolError
		if errors.As(cause, &perr) {
			hc.Logger().Warn().Err(cause).Msg("Closing connection after protocol error")
		}
	}
}

// InboundLimit bounds a connection's unconsumed input at one maximal handshake
// plus one maximal frame. Anything larger is rejected before it is complete.
func (h *Handler) InboundLimit() int {
	return h.config.MaxHandshakeSize + ws.MaxHeaderSize + h.config.MaxMessageSize
}

// Verify that Handler implements hub.Handler at compile time
var (
	_ hub.Handler        = (*Handler)(nil)
	_ hub.InboundLimiter = (*Handler)(nil)
)
