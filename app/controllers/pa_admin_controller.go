package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/talentbridge/jobboard/internal/pkg/paadmin"
	"github.com/talentbridge/jobboard/internal/pkg/response"
	"github.com/talentbridge/jobboard/internal/pkg/usercontext"
)

// PAAdminController handles the placement-agency console
type PAAdminController struct {
	svc *paadmin.Service
}

func NewPAAdminController(svc *paadmin.Service) *PAAdminController {
	return &PAAdminController{svc: svc}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive disabled"`
}

// LoginHandler issues a bearer token to accounts holding one of roles
func (pc *PAAdminController) LoginHandler(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req loginRequest
		if err := bindJSON(c, &req); err != nil {
			return response.Error(c, err)
		}
		session, err := pc.svc.Login(c.UserContext(), req.Email, req.Password, roles...)
		if err != nil {
			return response.Error(c, err)
		}
		return response.OK(c, session, "Logged in")
	}
}

func (pc *PAAdminController) HandleListUsers(c *fiber.Ctx) error {
	var q pageQuery
	if err := bindQuery(c, &q); err != nil {
		return response.Error(c, err)
	}
	users, total, err := pc.svc.ListSlaves(c.UserContext(), usercontext.GetAccountID(c), q.Skip, q.Limit)
	if err != nil {
		return response.Error(c, err)
	}
	return response.List(c, users, total, "Users")
}

func (pc *PAAdminController) HandleCreateUser(c *fiber.Ctx) error {
	var in paadmin.SlaveInput
	if err := bindJSON(c, &in); err != nil {
		return response.Error(c, err)
	}
	user, err := pc.svc.CreateSlave(c.UserContext(), usercontext.GetAccountID(c), in)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, user, "User created")
}

func (pc *PAAdminController) HandleUpdateUser(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return response.Error(c, err)
	}
	var in paadmin.SlaveUpdate
	if err := bindJSON(c, &in); err != nil {
		return response.Error(c, err)
	}
	user, err := pc.svc.UpdateSlave(c.UserContext(), usercontext.GetAccountID(c), id, in)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, user, "User updated")
}

func (pc *PAAdminController) HandleSetUserStatus(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return response.Error(c, err)
	}
	var req statusRequest
	if err := bindJSON(c, &req); err != nil {
		return response.Error(c, err)
	}
	user, err := pc.svc.SetSlaveStatus(c.UserContext(), usercontext.GetAccountID(c), id, req.Status)
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, user, "User status updated")
}

func (pc *PAAdminController) HandleDeleteUser(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return response.Error(c, err)
	}
	if err := pc.svc.DeleteSlave(c.UserContext(), usercontext.GetAccountID(c), id); err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, nil, "User deleted")
}

func (pc *PAAdminController) HandleDashboard(c *fiber.Ctx) error {
	d, err := pc.svc.Dashboard(c.UserContext(), usercontext.GetAccountID(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.OK(c, d, "Dashboard")
}
