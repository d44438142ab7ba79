package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"docchat/internal/model"
	"docchat/internal/pkg/logger"
	"docchat/internal/repository"
	"docchat/internal/retrieval"
	"docchat/internal/session"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageEmpty         = errors.New("message content is empty")
	ErrSessionNotFound      = errors.New("session not found")
)

const (
	defaultConversationTitle = "New conversation"
	maxTitleLength           = 100
	searchFailedReply        = "Sorry, something went wrong while searching your documents. Please try again."
)

// HistoryCache fronts conversation histories. Implementations may be lossy.
type HistoryCache interface {
	Get(ctx context.Context, conversationID uint) ([]model.Message, bool, error)
	Set(ctx context.Context, conversationID uint, messages []model.Message) error
	Invalidate(ctx context.Context, conversationID uint) error
}

type Searcher interface {
	Search(ctx context.Context, userID uint, question string) (*retrieval.Answer, error)
}

type ChatService struct {
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	sessions         session.Store
	searcher         Searcher
	historyCache     HistoryCache
	log              *logger.Logger
}

type ChatServiceDeps struct {
	Conversations *repository.ConversationRepository
	Messages      *repository.MessageRepository
	Sessions      session.Store
	Searcher      Searcher
	HistoryCache  HistoryCache
	Logger        *logger.Logger
}

type SendMessageInput struct {
	UserID         uint
	SessionID      string
	ConversationID uint
	Content        string
}

type SendMessageResult struct {
	Conversation     *model.Conversation `json:"conversation"`
	UserMessage      *model.Message      `json:"user_message"`
	AssistantMessage *model.Message      `json:"assistant_message"`
	Status           retrieval.Status    `json:"status"`
	Results          []retrieval.Result  `json:"results"`
	Warnings         []retrieval.Warning `json:"warnings"`
}

func NewChatService(deps ChatServiceDeps) *ChatService {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &ChatService{
		conversationRepo: deps.Conversations,
		messageRepo:      deps.Messages,
		sessions:         deps.Sessions,
		searcher:         deps.Searcher,
		historyCache:     deps.HistoryCache,
		log:              deps.Logger,
	}
}

// CreateConversation creates a conversation and makes it current for the session.
func (s *ChatService) CreateConversation(ctx context.Context, userID uint, sessionID, title string) (*model.Conversation, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultConversationTitle
	}
	if r := []rune(title); len(r) > maxTitleLength {
		title = string(r[:maxTitleLength])
	}

	conversation := &model.Conversation{UserID: userID, Title: title}
	if err := s.conversationRepo.Create(conversation); err != nil {
		return nil, err
	}
	if sessionID != "" {
		if err := s.setCurrent(ctx, sessionID, conversation.ID); err != nil {
			return nil, err
		}
	}
	return conversation, nil
}

func (s *ChatService) ListConversations(userID uint) ([]model.Conversation, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.conversationRepo.ListByUserID(userID)
}

// SelectConversation switches the session's current conversation.
func (s *ChatService) SelectConversation(ctx context.Context, userID uint, sessionID string, conversationID uint) (*model.Conversation, error) {
	conversation, err := s.owned(userID, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.setCurrent(ctx, sessionID, conversation.ID); err != nil {
		return nil, err
	}
	return conversation, nil
}

// History returns the conversation's messages oldest first.
func (s *ChatService) History(ctx context.Context, userID, conversationID uint) ([]model.Message, error) {
	if _, err := s.owned(userID, conversationID); err != nil {
		return nil, err
	}

	if s.historyCache != nil {
		if cached, hit, err := s.historyCache.Get(ctx, conversationID); err == nil && hit {
			return cached, nil
		} else if err != nil {
			s.log.Warn("history cache read failed", "conversation_id", conversationID, "error", err)
		}
	}

	messages, err := s.messageRepo.ListByConversationID(conversationID)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if err := s.historyCache.Set(ctx, conversationID, messages); err != nil {
			s.log.Warn("history cache write failed", "conversation_id", conversationID, "error", err)
		}
	}
	return messages, nil
}

// Append stores one message with the current time.
func (s *ChatService) Append(ctx context.Context, conversationID uint, isUser bool, content string) (*model.Message, error) {
	msg := &model.Message{
		ConversationID: conversationID,
		IsUser:         isUser,
		Content:        content,
		Timestamp:      time.Now(),
	}
	if err := s.messageRepo.Create(msg); err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if err := s.historyCache.Invalidate(ctx, conversationID); err != nil {
			s.log.Warn("history cache invalidate failed", "conversation_id", conversationID, "error", err)
		}
	}
	return msg, nil
}

// SendMessage records the question, searches the user's processed documents and
// records the answer. Without an explicit or current conversation a new one is
// created and selected.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrMessageEmpty
	}

	conversation, err := s.resolveConversation(ctx, input)
	if err != nil {
		return nil, err
	}

	userMsg, err := s.Append(ctx, conversation.ID, true, content)
	if err != nil {
		return nil, err
	}

	answer, searchErr := s.searcher.Search(ctx, input.UserID, content)
	if searchErr != nil {
		s.log.Error("document search failed", "user_id", input.UserID, "conversation_id", conversation.ID, "error", searchErr)
		if _, err := s.Append(ctx, conversation.ID, false, searchFailedReply); err != nil {
			s.log.Error("store failure reply failed", "conversation_id", conversation.ID, "error", err)
		}
		return nil, searchErr
	}

	assistantMsg, err := s.Append(ctx, conversation.ID, false, answer.Text())
	if err != nil {
		return nil, err
	}
	return &SendMessageResult{
		Conversation:     conversation,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Status:           answer.Status,
		Results:          answer.Results,
		Warnings:         answer.Warnings,
	}, nil
}

func (s *ChatService) resolveConversation(ctx context.Context, input SendMessageInput) (*model.Conversation, error) {
	if input.ConversationID != 0 {
		return s.owned(input.UserID, input.ConversationID)
	}
	if input.SessionID != "" {
		sess, err := s.sessions.Get(ctx, input.SessionID)
		if err != nil {
			return nil, err
		}
		if sess != nil && sess.ConversationID != nil {
			conversation, err := s.conversationRepo.GetByIDAndUserID(*sess.ConversationID, input.UserID)
			if err != nil {
				return nil, err
			}
			if conversation != nil {
				return conversation, nil
			}
		}
	}
	return s.CreateConversation(ctx, input.UserID, input.SessionID, "")
}

func (s *ChatService) owned(userID, conversationID uint) (*model.Conversation, error) {
	if userID == 0 || conversationID == 0 {
		return nil, ErrInvalidInput
	}
	conversation, err := s.conversationRepo.GetByIDAndUserID(conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

func (s *ChatService) setCurrent(ctx context.Context, sessionID string, conversationID uint) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	sess.ConversationID = &conversationID
	return s.sessions.Save(ctx, sess)
}
