// Copyright 2025-2026 AnswerFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package pipeline 实现自适应检索质量门控的问答管线：对自然语言问题
先分类，按类别路由到私有知识库的某种检索策略，对检索证据做多因子
充分性评估，仅在证据不足时补充外部网络搜索，最终合成带溯源标注的
答案。

执行为确定的状态机：

	classify → retrieve → assess → [supplement] → synthesize

质量门（Gate）是唯一分支点，其余边都是无条件的。任何单个组件的
故障都就地降级（回退分类、失败检索记录、空补充、道歉答案），只有
非法输入文本会作为硬错误返回给调用方。

# 核心类型

  - Pipeline — 编排器，支持同步（Ask）、异步（AskAsync）、增量
    （AskStream）与批量（AskBatch）四种执行模式
  - Classifier — 查询分类器，类别→模式映射失败时向 hybrid 开放回退
  - Dispatcher — 检索调度器，每请求恰好一次检索调用
  - Gate — 质量门，加权多因子评分 + 按类别的动态阈值
  - SupplementalRetriever — 条件网络补充检索
  - Synthesizer — 溯源优先级融合与答案置信度计算

# 外部能力

管线核心不实现检索、补全或搜索，只消费 Retriever、Completer、
WebSearcher 三个接口；真实客户端见 providers/ 子包。
*/
package pipeline
