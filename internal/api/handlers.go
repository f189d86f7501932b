package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/gmbridge-project/gmbridge/internal/bridge"
	"github.com/gmbridge-project/gmbridge/internal/config"
	"github.com/gmbridge-project/gmbridge/internal/db"
	"github.com/gmbridge-project/gmbridge/internal/events"
	"github.com/gmbridge-project/gmbridge/internal/gm"
	"github.com/gmbridge-project/gmbridge/internal/util"
)

// commandRequest is the body of every module command endpoint.
type commandRequest struct {
	Function string                 `json:"function" binding:"required"`
	Args     map[string]interface{} `json:"args"`
}

// handlePing is a liveness probe.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleGetBridgeInfo reports bridge identity and link state.
func (s *Server) handleGetBridgeInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":      "GMBridge",
		"version":   util.Version,
		"connected": s.bridge.Connected(),
	})
}

// handleLogin exchanges operator credentials for a JWT.
func (s *Server) handleLogin(auth *AuthMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}

		user, err := s.store.Authenticate(req.Username, req.Password)
		if err != nil {
			if errors.Is(err, db.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
				return
			}
			log.Error().Err(err).Msg("authentication query failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
			return
		}

		token, err := auth.IssueToken(user)
		if err != nil {
			log.Error().Err(err).Msg("token signing failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":    token,
			"username": user.Username,
			"role":     user.Role,
		})
	}
}

// handleModuleCommand translates one HTTP request into a bridged GM command.
func (s *Server) handleModuleCommand(module string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req commandRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  bridge.StatusError,
				"message": "request body must carry a function name",
			})
			return
		}
		if req.Args == nil {
			req.Args = map[string]interface{}{}
		}

		op, err := gm.Lookup(module, req.Function)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"status":  bridge.StatusError,
				"message": err.Error(),
			})
			return
		}

		role := c.GetString("role")
		if !gm.Covers(role, op.Permission) {
			c.JSON(http.StatusForbidden, gin.H{
				"status":   bridge.StatusError,
				"message":  "insufficient permissions",
				"required": op.Permission,
			})
			return
		}

		if err := gm.ValidateArgs(op, req.Args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  bridge.StatusError,
				"message": err.Error(),
			})
			return
		}

		result, err := s.bridge.Invoke(c.Request.Context(), op.SeqNo, op.Name, req.Args)
		status := result.Status
		if err != nil {
			status = bridge.StatusError
		}
		s.recordCommand(c, module, op.Name, req.Args, status, len(result.Frames))

		if err != nil {
			if errors.Is(err, bridge.ErrNotConnected) {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  bridge.StatusError,
					"message": "game server not connected",
				})
				return
			}
			log.Error().Err(err).Str("module", module).Str("function", req.Function).Msg("command failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  bridge.StatusError,
				"message": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": result.Status,
			"data":   result.Frames,
		})
	}
}

// recordCommand writes the audit entry and announces the execution.
func (s *Server) recordCommand(c *gin.Context, module, function string, args map[string]interface{}, status string, frames int) {
	operator := c.GetString("username")

	argsJSON, err := json.Marshal(args)
	if err != nil {
		argsJSON = []byte("{}")
	}
	if err := s.store.RecordAudit(operator, module, function, string(argsJSON), status); err != nil {
		log.Warn().Err(err).Msg("failed to record audit entry")
	}

	s.eventBus.Emit(c.Request.Context(), events.Event{
		Type:   events.EventCommandExecuted,
		Source: "api",
		Payload: events.CommandExecutedPayload{
			Module:   module,
			Function: function,
			Operator: operator,
			Status:   status,
			Frames:   frames,
		},
	})
}

// handleListOperations lists the catalog of one module.
func (s *Server) handleListOperations(c *gin.Context) {
	module := c.Param("module")
	ops := gm.Operations(module)
	if len(ops) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown module"})
		return
	}

	type opInfo struct {
		Function   string   `json:"function"`
		Permission string   `json:"permission"`
		Required   []string `json:"required_args"`
		Optional   []string `json:"optional_args,omitempty"`
	}
	infos := make([]opInfo, 0, len(ops))
	for _, o := range ops {
		infos = append(infos, opInfo{
			Function:   o.Name,
			Permission: o.Permission,
			Required:   o.Required,
			Optional:   o.Optional,
		})
	}
	c.JSON(http.StatusOK, gin.H{"module": module, "operations": infos})
}

// handleGetLink reports the game link state.
func (s *Server) handleGetLink(c *gin.Context) {
	status := events.LinkStatusDisconnected
	if s.bridge.Connected() {
		status = events.LinkStatusConnected
	}
	c.JSON(http.StatusOK, gin.H{
		"link":    status,
		"account": s.bridge.Account(),
	})
}

// handleGetCPU reports host CPU load.
func (s *Server) handleGetCPU(c *gin.Context) {
	cpu, err := util.GetCPUUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cpu sampling failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cpu_percent": cpu})
}

// handleGetMemory reports host memory usage.
func (s *Server) handleGetMemory(c *gin.Context) {
	mem, err := util.GetMemoryUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "memory sampling failed"})
		return
	}
	c.JSON(http.StatusOK, mem)
}

// handleGetSystemInfo reports host metrics.
func (s *Server) handleGetSystemInfo(c *gin.Context) {
	info := util.GetSystemInfo()

	response := gin.H{"system": info}
	if cpu, err := util.GetCPUUsage(); err == nil {
		response["cpu_percent"] = cpu
	}
	if mem, err := util.GetMemoryUsage(); err == nil {
		response["memory"] = mem
	}
	c.JSON(http.StatusOK, response)
}

// handleGetAudit returns recent audit entries.
func (s *Server) handleGetAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := s.store.ListAudit(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit query failed"})
		return
	}
	if entries == nil {
		entries = []db.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// handleGetConfig returns the full configuration. The GM password is
// blanked; it never leaves the process.
func (s *Server) handleGetConfig(c *gin.Context) {
	game := s.cfg.GetGameData()
	game.Password = ""
	c.JSON(http.StatusOK, gin.H{
		"game_data":        game,
		"application_data": s.cfg.GetApplicationData(),
	})
}

// handleSetGameData replaces the game data section.
func (s *Server) handleSetGameData(c *gin.Context) {
	var data config.GameData
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game data"})
		return
	}
	s.cfg.SetGameData(data)
	if err := s.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist config"})
		return
	}
	s.eventBus.Emit(c.Request.Context(), events.Event{
		Type:    events.EventConfigChanged,
		Source:  "api",
		Payload: events.ConfigChangedPayload{Section: "game_data"},
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleSetAppData replaces the application data section.
func (s *Server) handleSetAppData(c *gin.Context) {
	var data config.ApplicationData
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid application data"})
		return
	}
	s.cfg.SetApplicationData(data)
	if err := s.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist config"})
		return
	}
	s.eventBus.Emit(c.Request.Context(), events.Event{
		Type:    events.EventConfigChanged,
		Source:  "api",
		Payload: events.ConfigChangedPayload{Section: "application_data"},
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleGetUsers lists operator accounts.
func (s *Server) handleGetUsers(c *gin.Context) {
	users, err := s.store.ListUsers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user query failed"})
		return
	}
	if users == nil {
		users = []db.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// handleCreateUser creates an operator account.
func (s *Server) handleCreateUser(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Role     string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, password and role are required"})
		return
	}
	if err := s.store.CreateUser(req.Username, req.Password, req.Role); err != nil {
		if errors.Is(err, db.ErrInvalidRole) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}

// handleDeleteUser removes an operator account.
func (s *Server) handleDeleteUser(c *gin.Context) {
	username := c.Param("username")
	if username == c.GetString("username") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete the account you are logged in with"})
		return
	}
	if err := s.store.DeleteUser(username); err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleSetRole changes an operator's role.
func (s *Server) handleSetRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role is required"})
		return
	}
	if err := s.store.SetRole(c.Param("username"), req.Role); err != nil {
		switch {
		case errors.Is(err, db.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, db.ErrInvalidRole):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change role"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleSetPassword replaces an operator's password.
func (s *Server) handleSetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}
	if err := s.store.SetPassword(c.Param("username"), req.Password); err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change password"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
