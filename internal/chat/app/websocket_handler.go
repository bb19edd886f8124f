package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"festival_chat_service/internal/chat/domain"
	"festival_chat_service/internal/chat/repository"
	"festival_chat_service/pkg/logger"
	"festival_chat_service/pkg/middlewares"
)

// ChatWebsocketHandler 每條連線一個實例，持有該連線訂閱中的房間
type ChatWebsocketHandler struct {
	roomUC    *RoomUseCase
	messageUC *SendMessageUseCase
	pubsub    repository.PubSub
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(
	roomUC *RoomUseCase,
	messageUC *SendMessageUseCase,
	pubsub repository.PubSub,
) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		roomUC:    roomUC,
		messageUC: messageUC,
		pubsub:    pubsub,
	}
}

// connState 單一連線的訂閱狀態
type connState struct {
	mu   sync.Mutex
	subs map[string]context.CancelFunc // roomID -> 訂閱取消
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	tokenMember := conn.Locals(middlewares.TokenMemberID)
	memberID, ok := tokenMember.(string)
	if !ok || memberID == "" {
		logger.Log.Warn("websocket connection without member identity")
		conn.Close()
		return
	}
	logger.Log.Info("websocket connected", zap.String("userID", memberID))

	state := &connState{subs: map[string]context.CancelFunc{}}
	ticker := time.NewTicker(10 * time.Minute)
	ctxClose, cancel := context.WithCancel(context.Background())

	defer func() {
		ticker.Stop()
		// 斷線：退出所有即時在線 set，membership 保留供重連
		state.mu.Lock()
		rooms := make([]string, 0, len(state.subs))
		for roomID, cancelSub := range state.subs {
			cancelSub()
			rooms = append(rooms, roomID)
		}
		state.mu.Unlock()
		for _, roomID := range rooms {
			if err := h.roomUC.Disconnect(ctx, roomID, memberID); err != nil {
				logger.Log.Errorf("disconnect cleanup failed :", err, zap.String("roomID", roomID))
			}
		}
		logger.Log.Info("websocket close", zap.String("userID", memberID))
		conn.Close()
		cancel()
	}()

	//client發出close
	//fiber會自動處理(在read msg 回傳err),故需要SetCloseHandler另外接出
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Infof("WebSocket closed:", conn.RemoteAddr())
		return nil
	})

	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(appData string) error {
		return nil
	})

	//client發出ping
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(appData),
			time.Now().Add(time.Second),
		)
	})

	// 定期發送 Ping
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
					logger.Log.Errorf("Ping error:", err)
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Infof("Connection closed:", err)
			} else {
				logger.Log.Errorf("websocket read error:", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			h.sendError(conn, "", "unknown message type")
			continue
		}
		h.textMessageAction(ctx, conn, state, memberID, message)
	}
}

func (h *ChatWebsocketHandler) textMessageAction(ctx context.Context, conn *websocket.Conn, state *connState, memberID string, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		logger.Log.Errorf("json unmarshal error:", err)
		h.sendError(conn, "", "malformed request")
		return
	}

	resp := domain.WSResponse{Action: string(req.Action), RoomID: req.RoomID, Payload: map[string]interface{}{}}
	switch req.Action {
	//加入房間：geofence token 檢查在 use case 內
	case domain.ActionJoin:
		membership, err := h.roomUC.JoinRoom(ctx, req.RoomID, memberID)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["nickname"] = membership.Nickname
			h.subscribeRoom(conn, state, req.RoomID)
		}

	//明確離開：membership 刪除，重加入會拿到新暱稱
	case domain.ActionLeave:
		if err := h.roomUC.LeaveRoom(ctx, req.RoomID, memberID); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			h.unsubscribeRoom(state, req.RoomID)
		}

	//傳送訊息：寫入db後廣播給房間內的人
	case domain.ActionSend:
		m, err := h.messageUC.SendMessage(ctx, req.RoomID, memberID, req.Payload["content"])
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["message_id"] = m.ID
			resp.Payload["nickname"] = m.Nickname
		}

	//按讚開關
	case domain.ActionLike:
		liked, count, err := h.messageUC.ToggleLike(ctx, req.Payload["message_id"], memberID)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["liked"] = liked
			resp.Payload["like_count"] = count
		}

	default:
		h.sendError(conn, req.RoomID, "unknown action")
		return
	}

	if resp.Error != "" {
		logger.Log.Error("websocket err ",
			zap.String("MemberID", memberID), zap.String("Action", string(req.Action)), zap.String("err", resp.Error))
	}
	h.sendResponse(conn, resp)
}

// subscribeRoom 訂閱房間廣播頻道，重覆 join 同房不疊加訂閱
func (h *ChatWebsocketHandler) subscribeRoom(conn *websocket.Conn, state *connState, roomID string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	if _, ok := state.subs[roomID]; ok {
		return
	}
	ctxSub, cancel := context.WithCancel(context.Background())
	state.subs[roomID] = cancel
	h.pubsub.Subscribe(ctxSub, repository.RoomChannel(roomID), func(resp domain.WSResponse) {
		h.sendResponse(conn, resp)
	})
}

func (h *ChatWebsocketHandler) unsubscribeRoom(state *connState, roomID string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	if cancel, ok := state.subs[roomID]; ok {
		cancel()
		delete(state.subs, roomID)
	}
}

// sendResponse - 發送 JSON 給前端
func (h *ChatWebsocketHandler) sendResponse(conn *websocket.Conn, resp domain.WSResponse) {
	b, _ := json.Marshal(resp)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Errorf("write message error:", err)
	}
}

func (h *ChatWebsocketHandler) sendError(conn *websocket.Conn, roomID, errorMsg string) {
	h.sendResponse(conn, domain.WSResponse{
		Action:  "error",
		RoomID:  roomID,
		Success: false,
		Error:   errorMsg,
	})
}
