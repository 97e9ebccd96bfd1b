package plugin

import (
	"tomobot/internal/config"
	"tomobot/internal/runtime/supervisor"
	"tomobot/internal/transport/telegram/router"
)

// ---- Config ----

type Config = config.Config

type ConfigManager = config.ConfigManager

// PluginConfigRaw is the raw per-plugin config blob inside config.Config.
// It lives in the config package to keep the schema centralized.
type PluginConfigRaw = config.PluginConfigRaw

// ---- Runtime ----

type Supervisor = supervisor.Supervisor

type SupervisorOption = supervisor.Option

var NewSupervisor = supervisor.New

var WithLogger = supervisor.WithLogger

var WithCancelOnError = supervisor.WithCancelOnError

// ---- Router API (commands / callbacks) ----

type Access = router.Access

const (
	AccessEveryone  = router.AccessEveryone
	AccessOwnerOnly = router.AccessOwnerOnly
)

type Command = router.Command

type Request = router.Request

type HandlerFunc = router.HandlerFunc

type CallbackHandlerFunc = router.CallbackHandlerFunc

type CallbackRoute = router.CallbackRoute

type CallbackAccess = router.CallbackAccess

const (
	CallbackAccessOwnerOnly = router.CallbackAccessOwnerOnly
	CallbackAccessEveryone  = router.CallbackAccessEveryone
)

type Services = router.Services

type CommandManager = router.CommandManager

var NewCommandManager = router.NewCommandManager

// ---- Service ports ----

type SchedulePort = router.SchedulePort
