/*
包 api 定义 AnswerFlow HTTP API 的请求与响应类型。

# 概述

本包只包含数据传输对象（DTO）与管线类型的转换函数，不包含任何
处理逻辑。HTTP 处理器位于子包 api/handlers。

# 核心类型

  - AskRequest / AskResponse：单次问答的请求与响应。
  - BatchAskRequest / BatchAskResponse：批量问答，响应顺序与
    请求一致。
  - SessionResponse / TurnInfo：会话历史存档的查询响应。
  - SourceInfo：证据溯源条目，标注来源类型、定位符与可信度权重。
*/
package api
