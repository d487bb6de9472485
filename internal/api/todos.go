package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"todonest/internal/model"
	"todonest/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ErrTodoNotFound 表示待办不存在或不属于当前用户。
var ErrTodoNotFound = errors.New("todo not found")

// TodoStore 待办持久化接口。
//
// 所有查询都带 userID 过滤：他人的待办与不存在的待办不可区分。
type TodoStore interface {
	CreateTodo(ctx context.Context, todo *model.Todo) error
	ListTodos(ctx context.Context, userID uint, skip, limit int, archived *bool) ([]model.Todo, error)
	GetTodo(ctx context.Context, userID, todoID uint) (*model.Todo, error)
	UpdateTodo(ctx context.Context, userID, todoID uint, updates map[string]interface{}) error
	SaveTodo(ctx context.Context, todo *model.Todo) error
	DeleteTodo(ctx context.Context, userID, todoID uint) error
}

type dbTodoStore struct {
	db *gorm.DB
}

func (s dbTodoStore) CreateTodo(ctx context.Context, todo *model.Todo) error {
	return s.db.WithContext(ctx).Create(todo).Error
}

func (s dbTodoStore) ListTodos(ctx context.Context, userID uint, skip, limit int, archived *bool) ([]model.Todo, error) {
	todos := []model.Todo{}
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if archived != nil {
		query = query.Where("archived = ?", *archived)
	}
	if err := query.Order("id ASC").Offset(skip).Limit(limit).Find(&todos).Error; err != nil {
		return nil, err
	}
	return todos, nil
}

func (s dbTodoStore) GetTodo(ctx context.Context, userID, todoID uint) (*model.Todo, error) {
	var todo model.Todo
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", todoID, userID).First(&todo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTodoNotFound
		}
		return nil, err
	}
	return &todo, nil
}

func (s dbTodoStore) UpdateTodo(ctx context.Context, userID, todoID uint, updates map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&model.Todo{}).
		Where("id = ? AND user_id = ?", todoID, userID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTodoNotFound
	}
	return nil
}

func (s dbTodoStore) SaveTodo(ctx context.Context, todo *model.Todo) error {
	return s.db.WithContext(ctx).Save(todo).Error
}

func (s dbTodoStore) DeleteTodo(ctx context.Context, userID, todoID uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", todoID, userID).Delete(&model.Todo{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTodoNotFound
	}
	return nil
}

// createTodoRequest 创建待办的请求参数。
type createTodoRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

type updateTodoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
	Archived    *bool   `json:"archived"`
}

// handleCreateTodo 处理创建待办的请求。
//
// POST /todos
func (s *Server) handleCreateTodo(c *gin.Context) {
	var req createTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title"})
		return
	}

	todo := model.Todo{
		UserID:      getUserID(c),
		Title:       title,
		Description: req.Description,
	}
	if err := s.todoStore.CreateTodo(c.Request.Context(), &todo); err != nil {
		s.logger.Error("create todo failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create todo failed"})
		return
	}

	metrics.TodoCreatedTotal.Inc()
	c.JSON(http.StatusCreated, todo)
}

// handleListTodos 返回当前用户的待办列表。
//
// GET /todos?skip=0&limit=20&archived=false
func (s *Server) handleListTodos(c *gin.Context) {
	userID := getUserID(c)

	skip := parseQueryInt(c, "skip", 0)
	if skip < 0 {
		skip = 0
	}
	limit := parseQueryInt(c, "limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var archived *bool
	if v := c.Query("archived"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid archived"})
			return
		}
		archived = &b
	}

	todos, err := s.todoStore.ListTodos(c.Request.Context(), userID, skip, limit, archived)
	if err != nil {
		s.logger.Error("list todos failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list todos failed"})
		return
	}
	c.JSON(http.StatusOK, todos)
}

// handleGetTodo 返回单条待办。
func (s *Server) handleGetTodo(c *gin.Context) {
	todoID, ok := parseTodoID(c)
	if !ok {
		return
	}

	todo, err := s.todoStore.GetTodo(c.Request.Context(), getUserID(c), todoID)
	if err != nil {
		s.respondTodoErr(c, err, "get todo failed")
		return
	}
	c.JSON(http.StatusOK, todo)
}

// handleUpdateTodo 部分更新待办，仅提供的字段生效。
//
// PUT /todos/:id
func (s *Server) handleUpdateTodo(c *gin.Context) {
	todoID, ok := parseTodoID(c)
	if !ok {
		return
	}
	userID := getUserID(c)

	var req updateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title"})
			return
		}
		updates["title"] = title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Completed != nil {
		updates["completed"] = *req.Completed
	}
	if req.Archived != nil {
		updates["archived"] = *req.Archived
	}

	if len(updates) > 0 {
		if err := s.todoStore.UpdateTodo(c.Request.Context(), userID, todoID, updates); err != nil {
			s.respondTodoErr(c, err, "update todo failed")
			return
		}
	}

	todo, err := s.todoStore.GetTodo(c.Request.Context(), userID, todoID)
	if err != nil {
		s.respondTodoErr(c, err, "get todo failed")
		return
	}
	c.JSON(http.StatusOK, todo)
}

// handleDeleteTodo 删除待办。
func (s *Server) handleDeleteTodo(c *gin.Context) {
	todoID, ok := parseTodoID(c)
	if !ok {
		return
	}

	if err := s.todoStore.DeleteTodo(c.Request.Context(), getUserID(c), todoID); err != nil {
		s.respondTodoErr(c, err, "delete todo failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// handleToggleComplete 翻转完成状态。
//
// PATCH /todos/:id/complete
func (s *Server) handleToggleComplete(c *gin.Context) {
	s.toggleTodo(c, func(todo *model.Todo) {
		todo.Completed = !todo.Completed
	})
}

// handleToggleArchive 翻转归档状态。
//
// PATCH /todos/:id/archive
func (s *Server) handleToggleArchive(c *gin.Context) {
	s.toggleTodo(c, func(todo *model.Todo) {
		todo.Archived = !todo.Archived
	})
}

func (s *Server) toggleTodo(c *gin.Context, flip func(*model.Todo)) {
	todoID, ok := parseTodoID(c)
	if !ok {
		return
	}
	userID := getUserID(c)

	todo, err := s.todoStore.GetTodo(c.Request.Context(), userID, todoID)
	if err != nil {
		s.respondTodoErr(c, err, "get todo failed")
		return
	}

	flip(todo)
	if err := s.todoStore.SaveTodo(c.Request.Context(), todo); err != nil {
		s.respondTodoErr(c, err, "update todo failed")
		return
	}
	c.JSON(http.StatusOK, todo)
}

func (s *Server) respondTodoErr(c *gin.Context, err error, msg string) {
	if errors.Is(err, ErrTodoNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "todo not found"})
		return
	}
	s.logger.Error(msg, slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

// parseTodoID 解析路径参数中的待办 ID，失败时直接写出 400。
func parseTodoID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid todo id"})
		return 0, false
	}
	return uint(id), true
}

// parseQueryInt 解析查询参数中的整数值。
//
// 参数:
//
//	c: Gin 上下文
//	key: 参数名
//	def: 默认值
//
// 返回值:
//
//	int: 解析后的整数或默认值
func parseQueryInt(c *gin.Context, key string, def int) int {
	val := c.Query(key)
	if val == "" {
		return def
	}
	iv, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return iv
}

func getUserID(c *gin.Context) uint {
	v, ok := c.Get("userID")
	if !ok {
		return 0
	}
	if id, ok := v.(uint); ok {
		return id
	}
	return 0
}
