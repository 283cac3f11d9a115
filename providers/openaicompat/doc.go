// Package openaicompat 提供面向任意 OpenAI 兼容端点的补全客户端。
//
// 客户端实现管线的 Completer 能力：单条用户提示词进，助手文本出。
// 5xx 与 429 响应按指数退避自动重试，4xx 视为永久失败直接返回。
package openaicompat
