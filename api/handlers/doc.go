/*
包 handlers 提供 AnswerFlow HTTP API 的请求处理器。

# 概述

本包将 pipeline.Pipeline 与 checkpoint.Store 暴露为 HTTP 端点，
包括同步问答、SSE 流式问答、批量问答、会话历史查询与健康检查。
所有处理器返回统一的 Response 包裹结构。

# 核心类型

  - AskHandler：问答端点，封装管线的 Ask/AskStream/AskBatch，
    并在会话 ID 存在时把每轮问答写入存档。
  - SessionHandler：会话历史的查询与删除。
  - HealthHandler：活跃度与就绪探针，支持注册任意 HealthCheck。

# 错误处理

管线的 ErrInvalidQuery 映射为 400，上下文取消映射为 503，其余
错误映射为 500。外部能力（检索、搜索、LLM）的故障不会到达本层，
它们在管线内部被降级吸收。
*/
package handlers
