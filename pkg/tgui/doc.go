// Package tgui renders plugin replies for Telegram: an HTML message
// builder, inline keyboards with "plugin:action:payload" callback data,
// and a TTL token store for pending confirmations whose payload exceeds
// the callback_data limit.
package tgui
